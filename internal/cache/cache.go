// Package cache provides a TTL and size bounded file-backed key/value store.
// The engine opens one Store per namespace (query results, scraped pages,
// summaries) under independent directories.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTTL is the absolute expiry applied when Set is called without an
	// explicit TTL.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxEntries is the hard cap before LRU eviction kicks in.
	DefaultMaxEntries = 100

	indexFile  = "index.json"
	bodySuffix = ".body"
)

// ErrMiss is returned by Get when the key is absent, expired, or its body
// file has gone missing.
var ErrMiss = errors.New("cache miss")

// Meta is the per-entry index record. Callers receive copies; the index owns
// the canonical values.
type Meta struct {
	Key        string            `json:"key"`
	Query      string            `json:"query,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	LastAccess time.Time         `json:"last_access"`
	UserMeta   map[string]string `json:"user_metadata,omitempty"`
}

// Stats is a snapshot of store counters.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
}

// Store is a TTL+LRU cache with one body file per key and a single serialized
// index. Bodies are written before the index so a torn index never references
// a missing body; a torn index itself is recovered as empty and orphan body
// files are garbage-collected lazily on the next Set.
type Store struct {
	dir        string
	ttl        time.Duration
	maxEntries int

	mu    sync.RWMutex
	index map[string]*Meta
	stats Stats
	now   func() time.Time
}

// Open loads or creates the store under dir and sweeps already-expired
// entries. A corrupt index is treated as empty.
func Open(dir string, ttl time.Duration, maxEntries int) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache dir not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &Store{
		dir:        dir,
		ttl:        ttl,
		maxEntries: maxEntries,
		index:      make(map[string]*Meta),
		now:        time.Now,
	}
	s.loadIndex()
	s.mu.Lock()
	s.sweepLocked()
	_ = s.writeIndexLocked()
	s.mu.Unlock()
	return s, nil
}

// Key derives a stable key from the normalized query (lowercased, trimmed)
// and the sorted metadata pairs. The result is a fixed-width 16 hex digit
// xxhash64 digest.
func Key(query string, meta map[string]string) string {
	norm := strings.ToLower(strings.TrimSpace(query))
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(norm)
	for _, k := range keys {
		sb.WriteString("||")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(meta[k])
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(sb.String()))
}

// Get returns the stored value for key, updating its last access time. A
// missing or expired entry, or an entry whose body file is gone, is removed
// and reported as ErrMiss.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.index[key]
	if !ok {
		s.stats.Misses++
		return nil, ErrMiss
	}
	if !s.now().Before(meta.ExpiresAt) {
		s.removeLocked(key)
		s.stats.Expired++
		s.stats.Misses++
		_ = s.writeIndexLocked()
		return nil, ErrMiss
	}
	body, err := os.ReadFile(s.bodyPath(key))
	if err != nil {
		s.removeLocked(key)
		s.stats.Misses++
		_ = s.writeIndexLocked()
		return nil, ErrMiss
	}
	meta.LastAccess = s.now()
	s.stats.Hits++
	_ = s.writeIndexLocked()
	return body, nil
}

// Set stores value under key with the default TTL.
func (s *Store) Set(key string, value []byte, userMeta map[string]string) error {
	return s.SetTTL(key, value, userMeta, s.ttl)
}

// SetTTL stores value with an explicit TTL, sweeps expired entries, collects
// orphan bodies, and evicts least-recently-used entries over the cap.
func (s *Store) SetTTL(key string, value []byte, userMeta map[string]string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.bodyPath(key), value, 0o644); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	now := s.now()
	s.index[key] = &Meta{
		Key:        key,
		Query:      userMeta["query"],
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastAccess: now,
		UserMeta:   userMeta,
	}
	s.sweepLocked()
	s.collectOrphansLocked()
	s.evictLocked()
	return s.writeIndexLocked()
}

// Delete removes key and its body.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
	return s.writeIndexLocked()
}

// Clear drops every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.index {
		s.removeLocked(key)
	}
	return s.writeIndexLocked()
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Stats returns a snapshot of counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Entries = len(s.index)
	return st
}

func (s *Store) bodyPath(key string) string {
	return filepath.Join(s.dir, key+bodySuffix)
}

func (s *Store) removeLocked(key string) {
	delete(s.index, key)
	_ = os.Remove(s.bodyPath(key))
}

// sweepLocked drops entries past their absolute expiry.
func (s *Store) sweepLocked() {
	now := s.now()
	for key, meta := range s.index {
		if !now.Before(meta.ExpiresAt) {
			s.removeLocked(key)
			s.stats.Expired++
		}
	}
}

// collectOrphansLocked removes body files with no index entry. These appear
// after a torn index was recovered as empty.
func (s *Store) collectOrphansLocked() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, bodySuffix) {
			continue
		}
		key := strings.TrimSuffix(name, bodySuffix)
		if _, ok := s.index[key]; !ok {
			_ = os.Remove(filepath.Join(s.dir, name))
		}
	}
}

// evictLocked removes entries in ascending last-access order until the store
// is under its cap. Sorting all entries is fine at the configured sizes.
func (s *Store) evictLocked() {
	if len(s.index) <= s.maxEntries {
		return
	}
	metas := make([]*Meta, 0, len(s.index))
	for _, m := range s.index {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].LastAccess.Before(metas[j].LastAccess)
	})
	for _, m := range metas {
		if len(s.index) <= s.maxEntries {
			break
		}
		s.removeLocked(m.Key)
		s.stats.Evictions++
	}
}

func (s *Store) loadIndex() {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		return
	}
	var metas []*Meta
	if err := json.Unmarshal(data, &metas); err != nil {
		// Torn or corrupt index: recover as empty. Leftover bodies are
		// orphans collected on the next Set.
		log.Warn().Err(err).Str("dir", s.dir).Msg("cache index corrupt; starting empty")
		return
	}
	for _, m := range metas {
		if m != nil && m.Key != "" {
			s.index[m.Key] = m
		}
	}
}

// writeIndexLocked serializes the index atomically (write temp, rename).
func (s *Store) writeIndexLocked() error {
	metas := make([]*Meta, 0, len(s.index))
	for _, m := range s.index {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Key < metas[j].Key })
	data, err := json.Marshal(metas)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	path := filepath.Join(s.dir, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return os.Rename(tmp, path)
}
