package moderation

import (
	"fmt"
	"strings"
	"time"
)

// Action is a moderation action the bot knows how to perform.
type Action string

const (
	ActionBan       Action = "ban"
	ActionKick      Action = "kick"
	ActionTimeout   Action = "timeout"
	ActionUnban     Action = "unban"
	ActionUntimeout Action = "untimeout"
)

// ParseAction maps s onto the closed action set.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionBan, ActionKick, ActionTimeout, ActionUnban, ActionUntimeout:
		return a, true
	}
	return "", false
}

// Verb is the human form used in prompts.
func (a Action) Verb() string {
	switch a {
	case ActionTimeout:
		return "time out"
	case ActionUntimeout:
		return "lift the timeout on"
	default:
		return string(a)
	}
}

// Intent is a classified moderation request.
type Intent struct {
	Action Action
	// Target is the reference the classifier produced, e.g. "@bob".
	Target string
	// TargetID is filled in once Target resolves to a user.
	TargetID   int64
	Reason     string
	Duration   time.Duration
	Confidence float64
}

// Describe renders the intent for a confirmation prompt.
func (in Intent) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", in.Action.Verb(), in.Target)
	if in.Action == ActionTimeout && in.Duration > 0 {
		fmt.Fprintf(&b, " for %s", formatMinutes(in.Duration))
	}
	if in.Reason != "" {
		fmt.Fprintf(&b, " (reason: %s)", in.Reason)
	}
	return b.String()
}

func formatMinutes(d time.Duration) string {
	m := int(d / time.Minute)
	switch {
	case m%(24*60) == 0:
		return plural(m/(24*60), "day")
	case m%60 == 0:
		return plural(m/60, "hour")
	default:
		return plural(m, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
