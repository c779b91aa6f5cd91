package relay

import (
	"sync"
	"time"
)

// rateLimiter admits at most max events per key in each fixed window.
type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Second
	}
	return &rateLimiter{
		window:  window,
		max:     max,
		entries: map[string]rateEntry{},
	}
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}

func (r *rateLimiter) forget(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}
