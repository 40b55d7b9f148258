// Package game defines the interface every interactive game implements and
// a registry the bot uses to expose them as commands.
package game

import (
	"context"

	"anya-bot/internal/session"
)

// Game is a startable interactive game. Each Start produces an independent
// engine that lives inside one session.
type Game interface {
	// Name returns the game's display name (e.g., "Blackjack").
	Name() string

	// Command returns the command that starts this game (e.g., "blackjack").
	Command() string

	// Description returns a brief description of the game.
	Description() string

	// Start creates a new engine for userID.
	Start(ctx context.Context, userID int64) (session.Engine, error)
}
