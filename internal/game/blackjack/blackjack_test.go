package blackjack

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"anya-bot/internal/session"
	"anya-bot/internal/surface"
)

func c(r Rank, s Suit) Card { return Card{Rank: r, Suit: s} }

// stacked builds a deck that deals the given cards in order.
func stacked(cards ...Card) []Card {
	deck := make([]Card, len(cards))
	for i, card := range cards {
		deck[len(cards)-1-i] = card
	}
	return deck
}

func TestHandValue(t *testing.T) {
	tests := []struct {
		name string
		hand Hand
		want int
	}{
		{"two aces and nine", Hand{c(Ace, Spades), c(Ace, Hearts), c(Nine, Clubs)}, 21},
		{"ace king", Hand{c(Ace, Spades), c(King, Hearts)}, 21},
		{"pair of aces", Hand{c(Ace, Spades), c(Ace, Hearts)}, 12},
		{"four aces", Hand{c(Ace, Spades), c(Ace, Hearts), c(Ace, Diamonds), c(Ace, Clubs)}, 14},
		{"soft to hard", Hand{c(Ace, Spades), c(Five, Hearts), c(King, Clubs)}, 16},
		{"bust without aces", Hand{c(King, Spades), c(Queen, Hearts), c(Two, Clubs)}, 22},
		{"face cards count ten", Hand{c(Jack, Spades), c(Queen, Hearts)}, 20},
		{"empty", Hand{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hand.Value())
		})
	}
}

func genCard() *rapid.Generator[Card] {
	return rapid.Custom(func(t *rapid.T) Card {
		return Card{
			Rank: Rank(rapid.IntRange(int(Ace), int(King)).Draw(t, "rank")),
			Suit: Suit(rapid.IntRange(int(Spades), int(Clubs)).Draw(t, "suit")),
		}
	})
}

// TestAceReductionProperty tests Property 1: Ace Reduction.
// *For any* hand, Value SHALL count exactly one ace as 11 when that keeps
// the total at or under 21, and otherwise count every ace as 1. A hand
// holding an ace that could still be reduced never exceeds 21.
func TestAceReductionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hand := Hand(rapid.SliceOfN(genCard(), 0, 12).Draw(t, "hand"))

		hard, aces := 0, 0
		for _, card := range hand {
			if card.Rank == Ace {
				hard++
				aces++
			} else {
				hard += card.Value()
			}
		}
		want := hard
		if aces > 0 && hard+10 <= 21 {
			want = hard + 10
		}

		if got := hand.Value(); got != want {
			t.Fatalf("Value(%s) = %d, want %d", hand, got, want)
		}
	})
}

func TestNaturals(t *testing.T) {
	tests := []struct {
		name    string
		deck    []Card
		outcome Outcome
	}{
		{
			"player natural",
			stacked(c(Ace, Spades), c(Nine, Hearts), c(King, Spades), c(Seven, Hearts)),
			PlayerWin,
		},
		{
			"dealer natural",
			stacked(c(Nine, Hearts), c(Ace, Spades), c(Seven, Hearts), c(Queen, Spades)),
			DealerWin,
		},
		{
			"both natural push",
			stacked(c(Ace, Spades), c(Ace, Hearts), c(King, Spades), c(Ten, Hearts)),
			Push,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewFromDeck(tt.deck)
			require.NoError(t, err)
			assert.True(t, g.Over())
			assert.Equal(t, tt.outcome, g.Outcome())
			assert.ErrorIs(t, g.Hit(), ErrGameOver)
			assert.ErrorIs(t, g.Stand(), ErrGameOver)
		})
	}
}

func TestHitBust(t *testing.T) {
	g, err := NewFromDeck(stacked(
		c(King, Spades), c(Nine, Hearts), c(Six, Spades), c(Seven, Hearts),
		c(Queen, Clubs),
	))
	require.NoError(t, err)
	require.False(t, g.Over())

	require.NoError(t, g.Hit())
	assert.Equal(t, 26, g.Player().Value())
	assert.True(t, g.Over())
	assert.Equal(t, DealerWin, g.Outcome())
	assert.ErrorIs(t, g.Hit(), ErrGameOver)
}

func TestStand_DealerDrawsToSeventeen(t *testing.T) {
	g, err := NewFromDeck(stacked(
		c(King, Spades), c(Two, Hearts), c(Nine, Spades), c(Three, Hearts),
		c(Four, Clubs), c(Two, Clubs), c(Six, Diamonds), c(King, Diamonds),
	))
	require.NoError(t, err)

	require.NoError(t, g.Stand())
	// 2+3+4+2 = 11, then 6 makes 17 and the dealer stops.
	assert.Equal(t, 17, g.Dealer().Value())
	assert.Len(t, g.Dealer(), 5)
	assert.Equal(t, PlayerWin, g.Outcome())
	assert.Equal(t, 1, g.DeckSize())
}

func TestStand_Resolution(t *testing.T) {
	tests := []struct {
		name    string
		deck    []Card
		outcome Outcome
	}{
		{
			"dealer bust",
			stacked(c(Ten, Spades), c(Ten, Hearts), c(Two, Spades), c(Six, Hearts), c(King, Clubs)),
			PlayerWin,
		},
		{
			"dealer higher",
			stacked(c(Ten, Spades), c(Ten, Hearts), c(Seven, Spades), c(Nine, Hearts)),
			DealerWin,
		},
		{
			"equal totals push",
			stacked(c(Ten, Spades), c(Ten, Hearts), c(Eight, Spades), c(Eight, Hearts)),
			Push,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewFromDeck(tt.deck)
			require.NoError(t, err)
			require.NoError(t, g.Stand())
			assert.True(t, g.Over())
			assert.Equal(t, tt.outcome, g.Outcome())
		})
	}
}

func TestDeckExhausted(t *testing.T) {
	_, err := NewFromDeck(stacked(c(Two, Spades), c(Three, Spades), c(Four, Spades)))
	assert.ErrorIs(t, err, ErrDeckExhausted)

	g, err := NewFromDeck(stacked(c(Two, Spades), c(Three, Spades), c(Four, Spades), c(Five, Spades)))
	require.NoError(t, err)
	assert.ErrorIs(t, g.Hit(), ErrDeckExhausted)
	assert.ErrorIs(t, g.Stand(), ErrDeckExhausted)
}

// TestShuffledDealProperty tests Property 2: Fresh Deal.
// *For any* seed, a new game SHALL deal two cards to each side from a full
// deck of 52 distinct cards, and be terminal only if a natural was dealt.
func TestShuffledDealProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		g, err := New(rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		if len(g.Player()) != 2 || len(g.Dealer()) != 2 || g.DeckSize() != 48 {
			t.Fatalf("bad deal: player=%d dealer=%d deck=%d", len(g.Player()), len(g.Dealer()), g.DeckSize())
		}

		seen := make(map[Card]bool, 52)
		for _, card := range append(append(g.Player(), g.Dealer()...), g.deck...) {
			if seen[card] {
				t.Fatalf("duplicate card %s", card)
			}
			seen[card] = true
		}

		natural := g.Player().Natural() || g.Dealer().Natural()
		if g.Over() != natural {
			t.Fatalf("over=%v but natural=%v", g.Over(), natural)
		}
	})
}

func TestPlay_RenderHidesHoleCard(t *testing.T) {
	g, err := NewFromDeck(stacked(c(King, Spades), c(Nine, Hearts), c(Six, Spades), c(Seven, Hearts), c(Two, Clubs)))
	require.NoError(t, err)
	p := &Play{game: g}

	msg := p.Render()
	assert.Contains(t, msg.Text, "Dealer: 9♥ 🂠")
	assert.NotContains(t, msg.Text, "7♥")
	require.Len(t, msg.Actions, 2)
	assert.Equal(t, ActionHit, msg.Actions[0][0].Data)

	msg, err = p.Apply(context.Background(), surface.Event{Payload: ActionStand})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "7♥")
	assert.Empty(t, msg.Actions)
	assert.True(t, p.Done())
	assert.Equal(t, "dealer_win", p.Result())
}

func TestPlay_QuitAndUnknown(t *testing.T) {
	p, err := NewPlay(rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	_, err = p.Apply(context.Background(), surface.Event{Payload: "fold"})
	assert.ErrorIs(t, err, session.ErrUnknownAction)

	msg, err := p.Apply(context.Background(), surface.Event{Payload: ActionQuit})
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.True(t, strings.Contains(msg.Text, "walked away") || p.Game().Over())
}

func TestPlay_DeckExhaustedIsFault(t *testing.T) {
	g, err := NewFromDeck(stacked(c(Two, Spades), c(Three, Spades), c(Four, Spades), c(Five, Spades)))
	require.NoError(t, err)
	p := &Play{game: g}

	_, err = p.Apply(context.Background(), surface.Event{Payload: ActionHit})
	assert.ErrorIs(t, err, session.ErrEngineFault)
	assert.ErrorIs(t, err, ErrDeckExhausted)
}
