package session

import (
	"context"
	"errors"

	"anya-bot/internal/surface"
)

var (
	// ErrUnknownAction is returned by engines for payloads they do not understand.
	ErrUnknownAction = errors.New("session: unknown action")
	// ErrEngineFault marks an internal invariant violation. Dispatch
	// terminates the session when an engine returns an error wrapping it.
	ErrEngineFault = errors.New("session: engine fault")
)

// Engine is the state machine owned by a session: a game or a conversation.
// Engines are only ever called with the session lock held.
type Engine interface {
	// Render returns the current view without changing state.
	Render() surface.Message
	// Apply advances the engine with an owner's event.
	Apply(ctx context.Context, ev surface.Event) (surface.Message, error)
	// Done reports whether the engine reached a terminal state.
	Done() bool
}

// Resulter is implemented by engines that can label how they finished.
type Resulter interface {
	Result() string
}

// Fault wraps err so that Dispatch treats it as fatal to the session.
func Fault(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrEngineFault, err)
}
