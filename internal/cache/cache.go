package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// IdempotencyStore claims idempotency keys of in-flight sales. Claim reports
// false when the key is already held.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Entry is a report cache slot as observed by Get. It carries the cache
// generation seen at lookup time, and Set writes under that generation, so a
// report computed across an Invalidate lands where no reader looks.
type Entry struct {
	Key        string
	Generation int64
}

// ReportCache stores computed reports as JSON. Invalidate drops every entry,
// and is called whenever a sale is recorded or cancelled.
type ReportCache interface {
	Get(ctx context.Context, key string, dest any) (Entry, bool, error)
	Set(ctx context.Context, entry Entry, value any, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, key string, _ any) (Entry, bool, error) {
	return Entry{Key: key}, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ Entry, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}

// MemoryReportCache is the single-process ReportCache used when Redis is not
// configured.
type MemoryReportCache struct {
	mu         sync.Mutex
	generation int64
	entries    map[string]memoryReport
	now        func() time.Time
}

type memoryReport struct {
	payload []byte
	expires time.Time
}

func NewMemoryReportCache() *MemoryReportCache {
	return &MemoryReportCache{
		entries: make(map[string]memoryReport),
		now:     time.Now,
	}
}

func (c *MemoryReportCache) Get(_ context.Context, key string, dest any) (Entry, bool, error) {
	c.mu.Lock()
	entry := Entry{Key: key, Generation: c.generation}
	cached, ok := c.entries[key]
	if ok && !c.now().Before(cached.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return entry, false, nil
	}
	if err := json.Unmarshal(cached.payload, dest); err != nil {
		return entry, false, err
	}
	return entry, true, nil
}

func (c *MemoryReportCache) Set(_ context.Context, entry Entry, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.Generation != c.generation {
		return nil
	}
	c.entries[entry.Key] = memoryReport{payload: payload, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryReportCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	clear(c.entries)
	return nil
}

// MemoryIdempotencyStore is the single-process IdempotencyStore used when
// Redis is not configured.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.expires[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	s.sweepLocked(now)
	return true, nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.expires, key)
	return nil
}

func (s *MemoryIdempotencyStore) sweepLocked(now time.Time) {
	if len(s.expires) < 1024 {
		return
	}
	for key, expiry := range s.expires {
		if !now.Before(expiry) {
			delete(s.expires, key)
		}
	}
}
