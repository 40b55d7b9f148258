package moderation

import (
	"strings"
	"unicode"
)

// keywords is the pre-filter vocabulary. Only messages containing one of
// these, as whole words, are sent to the classifier.
var keywords = map[string]Action{
	"ban":       ActionBan,
	"kick":      ActionKick,
	"deport":    ActionKick,
	"timeout":   ActionTimeout,
	"time out":  ActionTimeout,
	"mute":      ActionTimeout,
	"silence":   ActionTimeout,
	"shush":     ActionTimeout,
	"unban":     ActionUnban,
	"un ban":    ActionUnban,
	"pardon":    ActionUnban,
	"untimeout": ActionUntimeout,
	"unmute":    ActionUntimeout,
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// MatchKeyword returns the action hinted by the first vocabulary word in
// text. Matching is case-insensitive and whole-word, so "banana" does not
// match "ban".
func MatchKeyword(text string) (Action, bool) {
	ws := words(text)
	for i, w := range ws {
		if i+1 < len(ws) {
			if a, ok := keywords[w+" "+ws[i+1]]; ok {
				return a, true
			}
		}
		if a, ok := keywords[w]; ok {
			return a, true
		}
	}
	return "", false
}

// HasKeyword reports whether text passes the pre-filter.
func HasKeyword(text string) bool {
	_, ok := MatchKeyword(text)
	return ok
}
