// Package blackjack implements a single-player blackjack hand against a
// dealer who draws to 17. The engine is deterministic given its deck.
package blackjack

import (
	"errors"
	"math/rand"
	"time"
)

// DealerStand is the total at which the dealer stops drawing.
const DealerStand = 17

var (
	ErrGameOver      = errors.New("blackjack: game is over")
	ErrDeckExhausted = errors.New("blackjack: deck exhausted")
)

// Outcome is the result of a hand.
type Outcome int

const (
	Pending Outcome = iota
	PlayerWin
	DealerWin
	Push
)

func (o Outcome) String() string {
	switch o {
	case PlayerWin:
		return "player_win"
	case DealerWin:
		return "dealer_win"
	case Push:
		return "push"
	default:
		return "pending"
	}
}

// Game is one hand of blackjack.
type Game struct {
	deck    []Card // drawn from the end
	player  Hand
	dealer  Hand
	over    bool
	outcome Outcome
}

// New shuffles a fresh deck with rng and deals the opening hands.
// A nil rng is seeded from the clock.
func New(rng *rand.Rand) (*Game, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	deck := NewDeck()
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return NewFromDeck(deck)
}

// NewFromDeck deals from a prepared deck. Cards are drawn from the end of
// the slice; the slice is copied.
func NewFromDeck(deck []Card) (*Game, error) {
	g := &Game{deck: append([]Card(nil), deck...)}

	for i := 0; i < 2; i++ {
		c, err := g.draw()
		if err != nil {
			return nil, err
		}
		g.player = append(g.player, c)

		c, err = g.draw()
		if err != nil {
			return nil, err
		}
		g.dealer = append(g.dealer, c)
	}

	g.checkNaturals()
	return g, nil
}

func (g *Game) draw() (Card, error) {
	n := len(g.deck)
	if n == 0 {
		return Card{}, ErrDeckExhausted
	}
	c := g.deck[n-1]
	g.deck = g.deck[:n-1]
	return c, nil
}

func (g *Game) checkNaturals() {
	p, d := g.player.Natural(), g.dealer.Natural()
	switch {
	case p && d:
		g.finish(Push)
	case p:
		g.finish(PlayerWin)
	case d:
		g.finish(DealerWin)
	}
}

func (g *Game) finish(o Outcome) {
	g.over = true
	g.outcome = o
}

// Hit draws one card for the player. Going over 21 loses immediately.
func (g *Game) Hit() error {
	if g.over {
		return ErrGameOver
	}
	c, err := g.draw()
	if err != nil {
		return err
	}
	g.player = append(g.player, c)
	if g.player.Bust() {
		g.finish(DealerWin)
	}
	return nil
}

// Stand ends the player's turn; the dealer draws while under DealerStand
// and the hand is resolved.
func (g *Game) Stand() error {
	if g.over {
		return ErrGameOver
	}
	for g.dealer.Value() < DealerStand {
		c, err := g.draw()
		if err != nil {
			return err
		}
		g.dealer = append(g.dealer, c)
	}

	pv, dv := g.player.Value(), g.dealer.Value()
	switch {
	case g.dealer.Bust():
		g.finish(PlayerWin)
	case pv > dv:
		g.finish(PlayerWin)
	case pv < dv:
		g.finish(DealerWin)
	default:
		g.finish(Push)
	}
	return nil
}

// Player returns a copy of the player's hand.
func (g *Game) Player() Hand { return append(Hand(nil), g.player...) }

// Dealer returns a copy of the dealer's hand.
func (g *Game) Dealer() Hand { return append(Hand(nil), g.dealer...) }

// Over reports whether the hand has been resolved.
func (g *Game) Over() bool { return g.over }

// Outcome returns the result, or Pending while the hand is live.
func (g *Game) Outcome() Outcome { return g.outcome }

// DeckSize returns the number of undealt cards.
func (g *Game) DeckSize() int { return len(g.deck) }
