package blackjack

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"anya-bot/internal/session"
	"anya-bot/internal/surface"
)

// Action payloads understood by Play.
const (
	ActionHit   = "hit"
	ActionStand = "stand"
	ActionQuit  = "quit"
)

// Play adapts a Game to a session engine and renders it.
type Play struct {
	game *Game
	quit bool
}

// NewPlay deals a new hand.
func NewPlay(rng *rand.Rand) (*Play, error) {
	g, err := New(rng)
	if err != nil {
		return nil, session.Fault(err)
	}
	return &Play{game: g}, nil
}

// Apply handles hit, stand and quit.
func (p *Play) Apply(_ context.Context, ev surface.Event) (surface.Message, error) {
	var err error
	switch ev.Payload {
	case ActionHit:
		err = p.game.Hit()
	case ActionStand:
		err = p.game.Stand()
	case ActionQuit:
		p.quit = true
		return p.Render(), nil
	default:
		return surface.Message{}, session.ErrUnknownAction
	}
	if errors.Is(err, ErrDeckExhausted) {
		return surface.Message{}, session.Fault(err)
	}
	if err != nil {
		return surface.Message{}, err
	}
	return p.Render(), nil
}

// Done reports whether the hand is resolved or abandoned.
func (p *Play) Done() bool {
	return p.quit || p.game.Over()
}

// Result labels the finished hand for metrics.
func (p *Play) Result() string {
	if p.quit && !p.game.Over() {
		return "quit"
	}
	return p.game.Outcome().String()
}

// Game exposes the underlying hand.
func (p *Play) Game() *Game {
	return p.game
}

// Render draws both hands. The dealer's hole card stays hidden until the
// hand is over.
func (p *Play) Render() surface.Message {
	g := p.game
	var b strings.Builder
	b.WriteString("🃏 Blackjack\n\n")

	dealer := g.Dealer()
	if g.Over() || p.quit {
		fmt.Fprintf(&b, "Dealer: %s (%d)\n", dealer, dealer.Value())
	} else {
		fmt.Fprintf(&b, "Dealer: %s 🂠\n", dealer[0])
	}
	player := g.Player()
	fmt.Fprintf(&b, "You: %s (%d)\n", player, player.Value())

	switch {
	case g.Over():
		b.WriteString("\n")
		b.WriteString(outcomeLine(g))
		return surface.Text(b.String())
	case p.quit:
		b.WriteString("\nYou walked away from the table.")
		return surface.Text(b.String())
	}

	return surface.Text(b.String()).
		Row(
			surface.Action{Label: "Hit", Data: ActionHit},
			surface.Action{Label: "Stand", Data: ActionStand},
		).
		Row(surface.Action{Label: "Quit", Data: ActionQuit})
}

func outcomeLine(g *Game) string {
	player, dealer := g.Player(), g.Dealer()
	switch g.Outcome() {
	case PlayerWin:
		switch {
		case player.Natural():
			return "Blackjack! You win 🎉"
		case dealer.Bust():
			return "Dealer busts. You win 🎉"
		default:
			return "You win 🎉"
		}
	case DealerWin:
		switch {
		case player.Bust():
			return "Bust! Dealer wins."
		case dealer.Natural():
			return "Dealer has blackjack. Dealer wins."
		default:
			return "Dealer wins."
		}
	case Push:
		return "Push. Nobody wins."
	}
	return ""
}
