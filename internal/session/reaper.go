package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"anya-bot/internal/surface"
)

const (
	DefaultIdleTimeout  = 15 * time.Minute
	DefaultReapInterval = 5 * time.Minute
)

// ExpiredFunc is called for each session the reaper removes, after its
// notification was attempted.
type ExpiredFunc func(s Session)

// Reaper periodically expires sessions idle longer than the timeout.
type Reaper struct {
	registry  *Registry
	surface   surface.Surface
	interval  time.Duration
	idle      time.Duration
	onExpired ExpiredFunc

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewReaper creates a reaper for registry. Zero durations use the defaults.
func NewReaper(registry *Registry, surf surface.Surface, interval, idle time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Reaper{
		registry: registry,
		surface:  surf,
		interval: interval,
		idle:     idle,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnExpired registers a callback run after each expiry. Call before Start.
func (rp *Reaper) OnExpired(fn ExpiredFunc) {
	rp.onExpired = fn
}

// Start runs the sweep loop until ctx is done or Stop is called.
func (rp *Reaper) Start(ctx context.Context) {
	rp.startOnce.Do(func() {
		ticker := time.NewTicker(rp.interval)
		go func() {
			defer close(rp.done)
			defer ticker.Stop()
			log.Info().
				Dur("interval", rp.interval).
				Dur("idle_timeout", rp.idle).
				Msg("Session reaper started")

			for {
				select {
				case <-ticker.C:
					rp.Sweep(ctx)
				case <-rp.stop:
					log.Info().Msg("Session reaper stopped")
					return
				case <-ctx.Done():
					log.Info().Err(ctx.Err()).Msg("Session reaper shutting down")
					return
				}
			}
		}()
	})
}

// Stop ends the loop and waits for it to exit. It is safe to call more
// than once, and before Start.
func (rp *Reaper) Stop() {
	rp.stopOnce.Do(func() {
		close(rp.stop)
	})
	started := true
	rp.startOnce.Do(func() {
		started = false
		close(rp.done)
	})
	if started {
		<-rp.done
	}
}

// Sweep expires every idle session once and returns how many it removed.
// Sessions busy with an action are skipped until the next sweep.
func (rp *Reaper) Sweep(ctx context.Context) int {
	reg := rp.registry
	now := reg.now()

	var expired []Session
	for _, s := range reg.snapshot() {
		if !reg.locks.TryLock(s.ID) {
			continue
		}
		removed := false
		if s.Idle(now) >= rp.idle {
			removed = reg.remove(s)
		}
		snap := *s
		reg.locks.Unlock(s.ID)

		if removed {
			reg.locks.Forget(s.ID)
			reg.metrics.SessionReaped(string(s.Kind))
			expired = append(expired, snap)
		}
	}

	for _, s := range expired {
		rp.notify(ctx, s)
		if rp.onExpired != nil {
			rp.onExpired(s)
		}
	}

	if pruned := reg.pruneWindows(); pruned > 0 {
		log.Debug().Int("windows", pruned).Msg("Pruned idle rate windows")
	}
	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Int("remaining", reg.Len()).Msg("Session reaper sweep")
	}
	return len(expired)
}

// notify tells the owner their session expired. Failures are logged only.
func (rp *Reaper) notify(ctx context.Context, s Session) {
	if rp.surface == nil {
		return
	}
	if err := rp.surface.Notify(ctx, s.Target, ExpiryNotice(s)); err != nil {
		log.Warn().Err(err).
			Str("conversation_id", s.ID).
			Int64("user_id", s.Owner).
			Msg("Failed to send expiry notice")
	}
}

// ExpiryNotice is the text sent when s times out.
func ExpiryNotice(s Session) string {
	if s.Kind == KindConversation {
		return fmt.Sprintf("⌛ The roleplay with %s ended after a period of inactivity.", s.Label)
	}
	return fmt.Sprintf("⌛ Your %s game expired after a period of inactivity.", s.Label)
}
