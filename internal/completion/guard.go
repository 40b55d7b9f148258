package completion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"anya-bot/internal/metrics"
	"anya-bot/internal/ratelimit"
)

// Service is what the rest of the bot uses to reach the completion service.
type Service interface {
	Complete(ctx context.Context, userID int64, prompt string) (string, error)
}

// Limits bounds throughput toward the completion service.
type Limits struct {
	GlobalLimit  int
	GlobalWindow time.Duration
	UserLimit    int
	UserWindow   time.Duration
	Clock        func() time.Time
}

// Guard puts a global and a per-user sliding window in front of a Client.
type Guard struct {
	client  Client
	metrics *metrics.Metrics

	mu     sync.Mutex
	global *ratelimit.Window
	users  *ratelimit.Keyed
}

// NewGuard wraps client. m may be nil.
func NewGuard(client Client, l Limits, m *metrics.Metrics) *Guard {
	if l.Clock == nil {
		l.Clock = time.Now
	}
	clock := ratelimit.WithClock(l.Clock)
	return &Guard{
		client:  client,
		metrics: m,
		global:  ratelimit.NewWindow(l.GlobalLimit, l.GlobalWindow, clock),
		users:   ratelimit.NewKeyed(l.UserLimit, l.UserWindow, clock),
	}
}

// Complete admits the call against both windows, then forwards it.
// A rejected call consumes no quota from either window.
func (g *Guard) Complete(ctx context.Context, userID int64, prompt string) (string, error) {
	if !g.admit(userID) {
		g.metrics.RateLimited("completion")
		g.metrics.CompletionDone("rate_limited", 0)
		return "", ErrRateLimited
	}

	start := time.Now()
	reply, err := g.client.Complete(ctx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = unavailable(err)
		}
		g.metrics.CompletionDone("error", elapsed)
		log.Warn().Err(err).Int64("user_id", userID).Dur("elapsed", elapsed).Msg("Completion call failed")
		return "", err
	}
	g.metrics.CompletionDone("ok", elapsed)
	return reply, nil
}

func (g *Guard) admit(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.users.Allow(userID) || !g.global.Allow() {
		return false
	}
	g.users.Admit(userID)
	g.global.Admit()
	return true
}

// Prune drops idle per-user windows.
func (g *Guard) Prune() int {
	return g.users.Prune()
}

// ReplyOr returns the reply, or fallback when the call failed or the reply
// is blank.
func ReplyOr(ctx context.Context, svc Service, userID int64, prompt, fallback string) string {
	reply, err := svc.Complete(ctx, userID, prompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		return fallback
	}
	return reply
}

