package ratelimit

import (
	"sync"
	"time"
)

// Keyed is a family of windows sharing one capacity and length, one window
// per user. Admit-or-reject for a single key is indivisible.
type Keyed struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	opts    []Option
	windows map[int64]*Window
}

// NewKeyed creates an empty per-key window family.
func NewKeyed(limit int, period time.Duration, opts ...Option) *Keyed {
	return &Keyed{
		limit:   limit,
		period:  period,
		opts:    opts,
		windows: make(map[int64]*Window),
	}
}

func (k *Keyed) window(key int64) *Window {
	w, ok := k.windows[key]
	if !ok {
		w = NewWindow(k.limit, k.period, k.opts...)
		k.windows[key] = w
	}
	return w
}

// Admit records an event for key if its window has room.
func (k *Keyed) Admit(key int64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.window(key).Admit()
}

// Allow reports whether Admit(key) would succeed without recording anything.
func (k *Keyed) Allow(key int64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	w, ok := k.windows[key]
	if !ok {
		return k.limit > 0
	}
	return w.Allow()
}

// RetryAfter returns how long key has to wait for its next admission.
func (k *Keyed) RetryAfter(key int64) time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()

	w, ok := k.windows[key]
	if !ok {
		return 0
	}
	return w.RetryAfter()
}

// Prune drops windows with no live timestamps and returns how many it removed.
func (k *Keyed) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	removed := 0
	for key, w := range k.windows {
		if w.empty() {
			delete(k.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.windows)
}
