package handler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"anya-bot/internal/surface"
)

const (
	// DefaultNoticeTTL is how long transient notices stay up.
	DefaultNoticeTTL = time.Minute
	// DefaultCleanInterval is how often the cleaner looks for expired notices.
	DefaultCleanInterval = 15 * time.Second
)

// TrackedMessage is a notice waiting to be deleted.
type TrackedMessage struct {
	Ref    surface.Ref
	SentAt time.Time
}

// Cleaner deletes transient notices, such as rate-limit warnings, once
// they are older than the TTL.
type Cleaner struct {
	surface  surface.Surface
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	onSweep  func()

	mu      sync.Mutex
	tracked []TrackedMessage

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewCleaner creates a cleaner. Zero durations use the defaults and a nil
// clock uses time.Now.
func NewCleaner(surf surface.Surface, ttl, interval time.Duration, clock func() time.Time) *Cleaner {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	if interval <= 0 {
		interval = DefaultCleanInterval
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cleaner{
		surface:  surf,
		ttl:      ttl,
		interval: interval,
		now:      clock,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Track schedules ref for deletion.
func (c *Cleaner) Track(ref surface.Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked = append(c.tracked, TrackedMessage{Ref: ref, SentAt: c.now()})
}

// OnSweep registers fn to run after every periodic clean. Call before Start.
func (c *Cleaner) OnSweep(fn func()) {
	c.onSweep = fn
}

// Pending returns how many notices are waiting.
func (c *Cleaner) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracked)
}

// Start runs the clean loop until ctx is done or Stop is called.
func (c *Cleaner) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go func() {
			defer close(c.done)
			ticker := time.NewTicker(c.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-c.stop:
					return
				case <-ticker.C:
					c.Clean(ctx)
					if c.onSweep != nil {
						c.onSweep()
					}
				}
			}
		}()
	})
}

// Stop ends the loop and waits for it. Safe to call more than once, or
// without Start.
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	started := true
	c.startOnce.Do(func() {
		started = false
		close(c.done)
	})
	if started {
		<-c.done
	}
}

// Clean deletes every notice older than the TTL and returns how many it
// removed from tracking. Failed deletes are dropped, not retried.
func (c *Cleaner) Clean(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	var expired []TrackedMessage
	remaining := c.tracked[:0]
	for _, msg := range c.tracked {
		if now.Sub(msg.SentAt) >= c.ttl {
			expired = append(expired, msg)
		} else {
			remaining = append(remaining, msg)
		}
	}
	c.tracked = remaining
	c.mu.Unlock()

	for _, msg := range expired {
		if err := c.surface.Delete(ctx, msg.Ref); err != nil {
			log.Debug().Err(err).Int("msg_id", msg.Ref.MessageID).Msg("Failed to delete notice")
		}
	}
	return len(expired)
}
