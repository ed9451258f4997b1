package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v2"
)

// MemoryStore keeps counters in process memory. Counters vanish on restart
// and are not shared between instances.
type MemoryStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	c := ttlcache.NewCache()
	c.SkipTTLExtensionOnHit(true)

	return &MemoryStore{cache: c, now: time.Now}
}

// WithClock swaps the clock used to decide window boundaries
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if v, err := m.cache.Get(key); err == nil {
		w := v.(Window)
		if now.Before(w.ResetAt) {
			w.Count++
			ttl := w.ResetAt.Sub(now)
			if err := m.cache.SetWithTTL(key, w, ttl); err != nil {
				return Window{}, err
			}

			return w, nil
		}
	}

	w := Window{Count: 1, ResetAt: now.Add(window)}
	if err := m.cache.SetWithTTL(key, w, window); err != nil {
		return Window{}, err
	}

	return w, nil
}

func (m *MemoryStore) Close() error {
	return m.cache.Close()
}
