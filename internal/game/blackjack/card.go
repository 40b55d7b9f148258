package blackjack

import "strings"

// Suit is a card suit.
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

var suitSymbols = [...]string{"♠", "♥", "♦", "♣"}

func (s Suit) String() string {
	if s < Spades || s > Clubs {
		return "?"
	}
	return suitSymbols[s]
}

// Rank is a card rank from Ace (1) to King (13).
type Rank int

const (
	Ace Rank = iota + 1
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
)

var rankNames = [...]string{"", "A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

func (r Rank) String() string {
	if r < Ace || r > King {
		return "?"
	}
	return rankNames[r]
}

// Card is an immutable playing card.
type Card struct {
	Rank Rank
	Suit Suit
}

// Value returns the card's nominal value: face cards count 10, an ace 11.
func (c Card) Value() int {
	switch {
	case c.Rank == Ace:
		return 11
	case c.Rank >= Ten:
		return 10
	default:
		return int(c.Rank)
	}
}

func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// Hand is an ordered set of cards. Its value is always derived, never cached.
type Hand []Card

// Value returns the best total for the hand. Each ace counts 11 until the
// total exceeds 21, then aces are reduced to 1 one at a time.
func (h Hand) Value() int {
	total, aces := 0, 0
	for _, c := range h {
		total += c.Value()
		if c.Rank == Ace {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

// Natural reports whether the hand is a two-card 21.
func (h Hand) Natural() bool {
	return len(h) == 2 && h.Value() == 21
}

// Bust reports whether the hand exceeds 21.
func (h Hand) Bust() bool {
	return h.Value() > 21
}

func (h Hand) String() string {
	parts := make([]string, len(h))
	for i, c := range h {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// NewDeck returns the 52 cards of a standard deck in suit-major order.
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for s := Spades; s <= Clubs; s++ {
		for r := Ace; r <= King; r++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}
