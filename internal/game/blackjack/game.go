package blackjack

import (
	"context"

	"anya-bot/internal/session"
)

// Blackjack registers the card game with the game registry.
type Blackjack struct{}

// NewGame creates the registrable blackjack game.
func NewGame() *Blackjack {
	return &Blackjack{}
}

func (*Blackjack) Name() string        { return "Blackjack" }
func (*Blackjack) Command() string     { return "blackjack" }
func (*Blackjack) Description() string { return "Beat the dealer to 21 without going over" }

// Start deals a fresh hand for userID.
func (*Blackjack) Start(_ context.Context, _ int64) (session.Engine, error) {
	p, err := NewPlay(nil)
	if err != nil {
		return nil, err
	}
	return p, nil
}
