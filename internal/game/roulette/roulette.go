// Package roulette implements the r/691 game: posting exactly "r/691"
// earns the poster a timeout whose length the completion service picks.
package roulette

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"anya-bot/internal/completion"
	"anya-bot/internal/moderation"
)

const (
	Trigger = "r/691"

	MinSeconds = 60
	MaxSeconds = 86400

	fallbackMinSeconds = 300
	fallbackMaxSeconds = 7200

	// FallbackMessage is used when the reply has no usable message.
	FallbackMessage = "Hmph! {} timeout for you, baka! 😤"
)

var emojis = []string{"⏰", "🚪", "💥", "🔨", "⚡", "🎲", "💀", "🎯"}

// IsTrigger reports whether text is exactly the trigger, ignoring case and
// surrounding space.
func IsTrigger(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), Trigger)
}

// Result is one spin.
type Result struct {
	Duration time.Duration
	Message  string
}

// Roulette picks and applies timeouts.
type Roulette struct {
	svc  completion.Service
	exec moderation.Executor

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a roulette. rng may be nil.
func New(svc completion.Service, exec moderation.Executor, rng *rand.Rand) *Roulette {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Roulette{svc: svc, exec: exec, rng: rng}
}

// Spin picks a timeout for userID and applies it in chatID.
func (r *Roulette) Spin(ctx context.Context, chatID, userID int64, text string) (Result, error) {
	res := r.pick(ctx, userID, text)

	err := r.exec.Execute(ctx, chatID, moderation.Intent{
		Action:     moderation.ActionTimeout,
		TargetID:   userID,
		Reason:     "r/691",
		Duration:   res.Duration,
		Confidence: 1,
	})
	if err != nil {
		return res, fmt.Errorf("apply 691 timeout: %w", err)
	}

	log.Info().
		Int64("chat_id", chatID).
		Int64("user_id", userID).
		Dur("duration", res.Duration).
		Msg("691 timeout applied")
	return res, nil
}

func (r *Roulette) pick(ctx context.Context, userID int64, text string) Result {
	reply, err := r.svc.Complete(ctx, userID, prompt(text))
	if err != nil {
		return r.fallback()
	}
	seconds, message, ok := parse(reply)
	if !ok {
		log.Debug().Int64("user_id", userID).Msg("691 reply unusable, using fallback")
		return r.fallback()
	}
	return Result{
		Duration: time.Duration(seconds) * time.Second,
		Message:  r.decorate(render(message, seconds)),
	}
}

func (r *Roulette) fallback() Result {
	r.mu.Lock()
	seconds := fallbackMinSeconds + r.rng.Intn(fallbackMaxSeconds-fallbackMinSeconds+1)
	r.mu.Unlock()
	return Result{
		Duration: time.Duration(seconds) * time.Second,
		Message:  r.decorate(render(FallbackMessage, seconds)),
	}
}

func (r *Roulette) decorate(msg string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return emojis[r.rng.Intn(len(emojis))] + " " + msg
}

// parse reads {duration_seconds, tsundere_message} from reply.
func parse(reply string) (int, string, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return 0, "", false
	}
	obj := reply[start : end+1]
	if !gjson.Valid(obj) {
		return 0, "", false
	}
	res := gjson.Parse(obj)

	d := res.Get("duration_seconds")
	if d.Type != gjson.Number {
		return 0, "", false
	}
	seconds := clamp(d.Float())

	message := strings.TrimSpace(res.Get("tsundere_message").String())
	if message == "" {
		message = FallbackMessage
	}
	return seconds, message, true
}

func clamp(v float64) int {
	switch {
	case v < MinSeconds:
		return MinSeconds
	case v > MaxSeconds:
		return MaxSeconds
	default:
		return int(v)
	}
}

// render puts the formatted duration where the template has {}.
func render(template string, seconds int) string {
	d := FormatDuration(seconds)
	if !strings.Contains(template, "{}") {
		return fmt.Sprintf("%s (%s)", template, d)
	}
	return strings.ReplaceAll(template, "{}", d)
}

// FormatDuration renders seconds as e.g. "45 seconds", "5m 30s" or "2 hours".
func FormatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return plural(seconds, "second")
	case seconds < 3600:
		m, s := seconds/60, seconds%60
		if s == 0 {
			return plural(m, "minute")
		}
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		h, m := seconds/3600, (seconds%3600)/60
		if m == 0 {
			return plural(h, "hour")
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func prompt(message string) string {
	return fmt.Sprintf(`A 691 game has been triggered by posting "r/691". Users who post it get randomly timed out.
Decide the timeout from the quality of the message and write a tsundere anime girl response.

Duration guidelines:
- Boring or low-effort posts: a few minutes
- Funny, creative or chaotic posts: a few hours
- Legendary posts: up to 24 hours
- Use variety, and give the duration in SECONDS, at most 86400

Message: %s

Put {} where the duration goes in the message, and keep it under 128 characters.
Respond with ONLY this JSON, no other text:
{"duration_seconds": <number>, "tsundere_message": "<message>"}`, message)
}
