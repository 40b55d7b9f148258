// Package session owns every live interactive session: games and roleplay
// conversations. The Registry enforces concurrency caps and creation quotas
// and serializes actions per session; the Reaper expires idle sessions.
//
// Nothing here is persisted. A restart ends every session.
package session

import (
	"errors"
	"time"

	"anya-bot/internal/surface"
)

// Kind separates games from conversations for caps and quotas.
type Kind string

const (
	KindGame         Kind = "game"
	KindConversation Kind = "conversation"
)

var (
	ErrNoSession     = errors.New("session: no such session")
	ErrNotOwner      = errors.New("session: not the session owner")
	ErrGlobalCap     = errors.New("session: too many active sessions")
	ErrUserCap       = errors.New("session: user already has an active session")
	ErrCreationRate  = errors.New("session: creation rate exceeded")
	ErrMessageRate   = errors.New("session: message rate exceeded")
	ErrSessionExists = errors.New("session: conversation already has a session")
)

// Session is a snapshot of one live session. Engine is shared with the
// registry and must only be driven through Registry.Dispatch.
type Session struct {
	ID           string
	Owner        int64
	Kind         Kind
	Label        string
	Target       surface.Target
	Ref          surface.Ref
	Engine       Engine
	CreatedAt    time.Time
	LastActivity time.Time
	Turns        int
}

// Idle returns how long the session has been inactive at now.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Spec describes a session to create.
type Spec struct {
	ID     string
	Owner  int64
	Kind   Kind
	Label  string
	Target surface.Target
	// NewEngine builds the engine once every cap and quota has passed.
	NewEngine func() (Engine, error)
}

// Outcome is the result of dispatching one event.
type Outcome struct {
	Session Session
	Message surface.Message
	Ended   bool
}
