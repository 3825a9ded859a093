package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type stubClient struct {
	reply string
	err   error
	seen  openai.ChatCompletionRequest
}

func (s *stubClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.seen = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.reply}},
		},
	}, nil
}

func TestComplete(t *testing.T) {
	stub := &stubClient{reply: "  the answer  "}
	c := &Completer{Client: stub, Model: "test-model"}
	out, err := c.Complete(context.Background(), "prompt", 256, 0.2)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "the answer" {
		t.Fatalf("out = %q", out)
	}
	if stub.seen.Model != "test-model" || stub.seen.MaxTokens != 256 {
		t.Fatalf("request not threaded through: %+v", stub.seen)
	}
}

func TestComplete_EmptyReplyIsInvalid(t *testing.T) {
	c := &Completer{Client: &stubClient{reply: "   "}, Model: "m"}
	_, err := c.Complete(context.Background(), "p", 0, -1)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestComplete_Unconfigured(t *testing.T) {
	c := &Completer{}
	if _, err := c.Complete(context.Background(), "p", 0, -1); err == nil {
		t.Fatal("expected error for unconfigured completer")
	}
}

func TestTimeoutFor(t *testing.T) {
	if d := TimeoutFor("short prompt"); d != BaseTimeout {
		t.Fatalf("short prompt timeout = %v, want base %v", d, BaseTimeout)
	}
	// 8000 chars ~ 2000 tokens ~ 100s > base 30s.
	long := strings.Repeat("x", 8000)
	if d := TimeoutFor(long); d != 100*time.Second {
		t.Fatalf("long prompt timeout = %v, want 100s", d)
	}
}

func TestClassify(t *testing.T) {
	if err := Classify(context.DeadlineExceeded); !errors.Is(err, ErrTimeout) {
		t.Fatalf("deadline should classify as timeout, got %v", err)
	}
	if err := Classify(errors.New("dial tcp: connection refused")); !errors.Is(err, ErrConnection) {
		t.Fatalf("refused should classify as connection, got %v", err)
	}
	if err := Classify(errors.New("this model's maximum context length is 8192 tokens")); !errors.Is(err, ErrTooLong) {
		t.Fatalf("context length should classify as too long, got %v", err)
	}
	plain := errors.New("something else")
	if err := Classify(plain); err != plain {
		t.Fatalf("unknown errors must pass through, got %v", err)
	}
}
