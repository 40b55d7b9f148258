// Package ratelimit implements sliding-window counters.
//
// A Window keeps the timestamps of admitted events in arrival order and
// evicts from the front only, so Admit is amortized O(1). Keyed holds one
// window per user and is what the session registry and the completion
// guard instantiate for each throttling scope.
package ratelimit

import (
	"sync"
	"time"
)

// Option configures a Window or Keyed.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Window admits at most limit events within any trailing period.
type Window struct {
	mu     sync.Mutex
	limit  int
	period time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewWindow creates a window with the given capacity and length.
func NewWindow(limit int, period time.Duration, opts ...Option) *Window {
	o := buildOptions(opts)
	if limit < 0 {
		limit = 0
	}
	return &Window{
		limit:  limit,
		period: period,
		stamps: make([]time.Time, 0, limit),
		now:    o.now,
	}
}

// evict drops timestamps that have left the window. Caller holds mu.
func (w *Window) evict(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= w.period {
		i++
	}
	if i > 0 {
		w.stamps = w.stamps[i:]
	}
}

// Admit records an event if the window has room and reports whether it did.
func (w *Window) Admit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evict(now)
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Allow reports whether Admit would succeed right now without recording anything.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(w.now())
	return len(w.stamps) < w.limit
}

// Remaining returns how many more events the window would admit now.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(w.now())
	return w.limit - len(w.stamps)
}

// RetryAfter returns how long until the next event could be admitted.
// Zero means an event would be admitted now.
func (w *Window) RetryAfter() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evict(now)
	if len(w.stamps) < w.limit {
		return 0
	}
	return w.stamps[0].Add(w.period).Sub(now)
}

// empty reports whether no timestamps remain after eviction.
func (w *Window) empty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(w.now())
	return len(w.stamps) == 0
}

// Limit returns the window capacity.
func (w *Window) Limit() int {
	return w.limit
}

// Period returns the window length.
func (w *Window) Period() time.Duration {
	return w.period
}
