// Package conversation implements roleplay sessions and free chat on top of
// the completion service.
package conversation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Limits bounds user-supplied roleplay content.
type Limits struct {
	MaxHistory         int
	ContextWindow      int
	MaxNameLength      int
	MaxPromptLength    int
	MaxAvatarURLLength int
	MaxMessageLength   int
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxHistory:         20,
		ContextWindow:      10,
		MaxNameLength:      64,
		MaxPromptLength:    1024,
		MaxAvatarURLLength: 512,
		MaxMessageLength:   512,
	}
}

// maxInlineAvatar caps data:image/ avatars.
const maxInlineAvatar = 8*1024 - 1

var (
	ErrBadName        = errors.New("character name must be plain English letters, digits and punctuation")
	ErrNameTooLong    = errors.New("character name too long")
	ErrEmptyPrompt    = errors.New("character prompt is empty")
	ErrPromptTooLong  = errors.New("character prompt too long")
	ErrBadAvatar      = errors.New("avatar must be an http(s) or data:image/ URL")
	ErrAvatarTooLong  = errors.New("avatar URL too long")
	ErrMessageTooLong = errors.New("message too long")
	ErrUnknownPreset  = errors.New("unknown preset")
	ErrEmptyMessage   = errors.New("empty message")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.()]+$`)

// Character is who the bot plays in a roleplay session.
type Character struct {
	Name   string
	Prompt string
	Avatar string
}

// Validate checks c against l.
func (c Character) Validate(l Limits) error {
	if utf8.RuneCountInString(c.Name) > l.MaxNameLength {
		return ErrNameTooLong
	}
	if strings.TrimSpace(c.Name) == "" || !namePattern.MatchString(c.Name) {
		return ErrBadName
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if utf8.RuneCountInString(c.Prompt) > l.MaxPromptLength {
		return ErrPromptTooLong
	}
	return validateAvatar(c.Avatar, l.MaxAvatarURLLength)
}

func validateAvatar(avatar string, max int) error {
	switch {
	case avatar == "":
		return nil
	case strings.HasPrefix(avatar, "http://"), strings.HasPrefix(avatar, "https://"):
		if len(avatar) > max {
			return ErrAvatarTooLong
		}
	case strings.HasPrefix(avatar, "data:image/"):
		if len(avatar) > maxInlineAvatar {
			return ErrAvatarTooLong
		}
	default:
		return ErrBadAvatar
	}
	return nil
}

// ParseCharacter reads "name | prompt [| avatar]" command arguments.
func ParseCharacter(args string) (Character, bool) {
	parts := strings.SplitN(args, "|", 3)
	if len(parts) < 2 {
		return Character{}, false
	}
	c := Character{
		Name:   strings.TrimSpace(parts[0]),
		Prompt: strings.TrimSpace(parts[1]),
	}
	if len(parts) == 3 {
		c.Avatar = strings.TrimSpace(parts[2])
	}
	return c, true
}
