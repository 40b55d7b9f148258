package moderation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"anya-bot/internal/completion"
)

// ConfidenceThreshold is the minimum classifier confidence for a proposal.
const ConfidenceThreshold = 0.75

const (
	DefaultMaxDuration     = 28 * 24 * time.Hour
	DefaultTimeoutDuration = 10 * time.Minute
	DefaultMaxReasonLength = 256
)

// ErrNotModeration means the text should be handled as ordinary chat.
var ErrNotModeration = errors.New("not a moderation request")

// Classifier turns free text into an Intent using the completion service.
type Classifier struct {
	svc         completion.Service
	threshold   float64
	maxDuration time.Duration
	maxReason   int
}

// NewClassifier creates a classifier. Non-positive limits use the defaults.
func NewClassifier(svc completion.Service, maxDuration time.Duration, maxReason int) *Classifier {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	if maxReason <= 0 {
		maxReason = DefaultMaxReasonLength
	}
	return &Classifier{
		svc:         svc,
		threshold:   ConfidenceThreshold,
		maxDuration: maxDuration,
		maxReason:   maxReason,
	}
}

// Classify returns the intent expressed by text, or ErrNotModeration.
// Text without a vocabulary word never reaches the completion service.
// Service failures also yield ErrNotModeration.
func (c *Classifier) Classify(ctx context.Context, userID int64, text string) (Intent, error) {
	if !HasKeyword(text) {
		return Intent{}, ErrNotModeration
	}

	reply, err := c.svc.Complete(ctx, userID, classifyPrompt(text))
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Intent classification unavailable")
		return Intent{}, ErrNotModeration
	}

	in, err := c.parse(reply)
	if err != nil {
		log.Debug().Err(err).Int64("user_id", userID).Msg("Classifier reply rejected")
		return Intent{}, ErrNotModeration
	}
	return in, nil
}

// parse validates a classifier reply. Any doubt rejects it.
func (c *Classifier) parse(reply string) (Intent, error) {
	obj, ok := extractObject(reply)
	if !ok {
		return Intent{}, errors.New("no JSON object in reply")
	}
	res := gjson.Parse(obj)

	action, ok := ParseAction(res.Get("action").String())
	if !ok {
		return Intent{}, fmt.Errorf("unknown action %q", res.Get("action").String())
	}

	conf := res.Get("confidence")
	if conf.Type != gjson.Number {
		return Intent{}, errors.New("confidence missing")
	}
	confidence := conf.Float()
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Intent{}, fmt.Errorf("confidence %v out of range", confidence)
	}
	if confidence < c.threshold {
		return Intent{}, fmt.Errorf("confidence %.2f below threshold", confidence)
	}

	target := strings.TrimSpace(res.Get("target").String())
	if target == "" || strings.EqualFold(target, "null") {
		return Intent{}, errors.New("target missing")
	}

	in := Intent{
		Action:     action,
		Target:     target,
		Reason:     truncateRunes(strings.TrimSpace(res.Get("reason").String()), c.maxReason),
		Confidence: confidence,
	}
	if action == ActionTimeout {
		in.Duration = c.clampDuration(res.Get("duration_minutes"))
	}
	return in, nil
}

func (c *Classifier) clampDuration(v gjson.Result) time.Duration {
	if v.Type != gjson.Number || v.Float() < 1 {
		return DefaultTimeoutDuration
	}
	if v.Float() >= c.maxDuration.Minutes() {
		return c.maxDuration
	}
	return time.Duration(v.Int()) * time.Minute
}

// extractObject returns the outermost {...} span of s, if it is valid JSON.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	obj := s[start : end+1]
	if !gjson.Valid(obj) || !gjson.Parse(obj).IsObject() {
		return "", false
	}
	return obj, true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func classifyPrompt(text string) string {
	return fmt.Sprintf(`You classify chat messages that may ask a group moderator bot to act.
Allowed actions: ban, kick, timeout, unban, untimeout.
If the message asks to act on the person it replies to, use "reply" as the target.
Otherwise the target is the @username or numeric user id mentioned.

Message: %q

Respond with ONLY this JSON, no other text:
{"action": "<action or none>", "target": "<target>", "reason": "<short reason or empty>", "duration_minutes": <number or 0>, "confidence": <0.0 to 1.0>}`, text)
}
