package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeProvider struct {
	name     string
	hits     []Hit
	err      error
	failures int // error this many times before succeeding
	calls    int
	disabled bool
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Enabled() bool { return !f.disabled }

func (f *fakeProvider) Search(_ context.Context, _ string, _ int) ([]Hit, error) {
	f.calls++
	if f.failures >= f.calls {
		return nil, errors.New("transient")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func hit(engine, url string) Hit {
	return Hit{URL: url, Title: url, Engine: engine}
}

func TestAggregator_DedupesAcrossEngines(t *testing.T) {
	first := &fakeProvider{name: "first", hits: []Hit{
		hit("first", "https://example.com/a"),
		hit("first", "https://example.com/b"),
	}}
	second := &fakeProvider{name: "second", hits: []Hit{
		hit("second", "HTTPS://EXAMPLE.COM/a#frag"), // same page after normalization
		hit("second", "https://example.com/c"),
	}}
	a := &Aggregator{Providers: []Provider{first, second}, sleep: func(time.Duration) {}}

	hits := a.Search(context.Background(), "q", 10)
	if len(hits) != 3 {
		t.Fatalf("expected 3 deduped hits, got %d: %+v", len(hits), hits)
	}
	// First engine listed wins the duplicate.
	if hits[0].Engine != "first" || hits[1].Engine != "first" {
		t.Fatalf("expected declaration-order collection, got %+v", hits)
	}
	if hits[2].URL != "https://example.com/c" {
		t.Fatalf("unexpected tail hit: %+v", hits[2])
	}
}

func TestAggregator_DropsNonHTTPURLs(t *testing.T) {
	p := &fakeProvider{name: "p", hits: []Hit{
		hit("p", "ftp://example.com/file"),
		hit("p", "/relative/path"),
		hit("p", "https://example.com/ok"),
	}}
	a := &Aggregator{Providers: []Provider{p}, sleep: func(time.Duration) {}}
	hits := a.Search(context.Background(), "q", 10)
	if len(hits) != 1 || hits[0].URL != "https://example.com/ok" {
		t.Fatalf("expected only the absolute http(s) hit, got %+v", hits)
	}
}

func TestAggregator_CapsAtTen(t *testing.T) {
	var many []Hit
	for i := 0; i < 25; i++ {
		many = append(many, hit("p", fmt.Sprintf("https://example.com/%d", i)))
	}
	a := &Aggregator{Providers: []Provider{&fakeProvider{name: "p", hits: many}}, sleep: func(time.Duration) {}}
	hits := a.Search(context.Background(), "q", 0)
	if len(hits) != MaxAggregateHits {
		t.Fatalf("expected cap of %d, got %d", MaxAggregateHits, len(hits))
	}
}

func TestAggregator_RetriesWithBackoff(t *testing.T) {
	p := &fakeProvider{name: "flaky", failures: 2, hits: []Hit{hit("flaky", "https://example.com/a")}}
	var delays []time.Duration
	a := &Aggregator{Providers: []Provider{p}, sleep: func(d time.Duration) { delays = append(delays, d) }}

	hits := a.Search(context.Background(), "q", 10)
	if len(hits) != 1 {
		t.Fatalf("expected success on third attempt, got %+v", hits)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected backoff schedule: %v", delays)
	}
}

func TestAggregator_AllEnginesFailReturnsEmpty(t *testing.T) {
	a := &Aggregator{
		Providers: []Provider{
			&fakeProvider{name: "a", err: errors.New("down")},
			&fakeProvider{name: "b", err: errors.New("down")},
		},
		sleep: func(time.Duration) {},
	}
	if hits := a.Search(context.Background(), "q", 10); len(hits) != 0 {
		t.Fatalf("expected empty aggregate, got %+v", hits)
	}
}

func TestAggregator_SkipsDisabledEngines(t *testing.T) {
	off := &fakeProvider{name: "off", disabled: true, hits: []Hit{hit("off", "https://example.com/x")}}
	on := &fakeProvider{name: "on", hits: []Hit{hit("on", "https://example.com/y")}}
	a := &Aggregator{Providers: []Provider{off, on}, sleep: func(time.Duration) {}}

	hits := a.Search(context.Background(), "q", 10)
	if len(hits) != 1 || hits[0].Engine != "on" {
		t.Fatalf("expected only the enabled engine, got %+v", hits)
	}
	if off.calls != 0 {
		t.Fatal("disabled engine should never be queried")
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"HTTPS://Example.COM/Path?b=2#frag", "https://example.com/Path?b=2", true},
		{"https://example.com/p?utm_source=x&id=1", "https://example.com/p?id=1", true},
		{"ftp://example.com/x", "", false},
		{"not a url at all ://", "", false},
		{"/relative", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeURL(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("NormalizeURL(%q) = %q, %v; want %q, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}
