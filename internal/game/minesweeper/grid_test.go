package minesweeper

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"anya-bot/internal/session"
	"anya-bot/internal/surface"
)

// gridWithMines builds a board with mines at fixed (x, y) positions.
func gridWithMines(t testing.TB, w, h int, mines ...[2]int) *Grid {
	g, err := NewGrid(w, h, len(mines), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	pos := make([]int, len(mines))
	for i, m := range mines {
		pos[i] = m[1]*w + m[0]
	}
	g.layMines(pos)
	return g
}

func countState(g *Grid, s CellState) int {
	n := 0
	for y := range g.cells {
		for x := range g.cells[y] {
			if g.cells[y][x].State == s {
				n++
			}
		}
	}
	return n
}

func TestNewGrid_Validation(t *testing.T) {
	_, err := NewGrid(0, 4, 1, nil)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = NewGrid(4, 4, 16, nil)
	assert.ErrorIs(t, err, ErrBadBoard)

	_, err = NewGrid(4, 4, 0, nil)
	assert.ErrorIs(t, err, ErrBadBoard)

	g, err := NewGrid(DefaultWidth, DefaultHeight, DefaultMines, nil)
	require.NoError(t, err)
	assert.False(t, g.Placed())
	assert.Equal(t, DefaultMines, g.FlagsLeft())
}

// TestFirstRevealSafeProperty tests Property 1: Safe Opening.
// *For any* seed and any first cell, the first reveal SHALL NOT hit a mine
// and SHALL place exactly the configured number of mines.
func TestFirstRevealSafeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		x := rapid.IntRange(0, DefaultWidth-1).Draw(t, "x")
		y := rapid.IntRange(0, DefaultHeight-1).Draw(t, "y")

		g, err := NewGrid(DefaultWidth, DefaultHeight, DefaultMines, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("NewGrid: %v", err)
		}
		if err := g.Reveal(x, y); err != nil {
			t.Fatalf("Reveal: %v", err)
		}

		if g.cells[y][x].Mine {
			t.Fatalf("first reveal at (%d,%d) hit a mine", x, y)
		}
		if g.Over() && !g.Won() {
			t.Fatalf("first reveal lost the game")
		}

		mines := 0
		for row := range g.cells {
			for col := range g.cells[row] {
				if g.cells[row][col].Mine {
					mines++
				}
			}
		}
		if mines != DefaultMines {
			t.Fatalf("placed %d mines, want %d", mines, DefaultMines)
		}
	})
}

// referenceReveal computes which cells a reveal at (x, y) should uncover
// with a breadth-first search over zero cells.
func referenceReveal(g *Grid, x, y int) map[[2]int]bool {
	out := map[[2]int]bool{{x, y}: true}
	queue := [][2]int{{x, y}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.cells[cur[1]][cur[0]].Adjacent != 0 {
			continue
		}
		g.neighbours(cur[0], cur[1], func(nx, ny int) {
			p := [2]int{nx, ny}
			if out[p] || g.cells[ny][nx].Mine || g.cells[ny][nx].State != Hidden {
				return
			}
			out[p] = true
			queue = append(queue, p)
		})
	}
	return out
}

// TestFloodRevealMatchesReferenceProperty tests Property 2: Flood Reveal.
// *For any* mine layout and first safe click, the revealed set SHALL equal
// the breadth-first reference, and the revealed counter SHALL equal the
// number of revealed cells (no cell is revealed twice).
func TestFloodRevealMatchesReferenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(2, 8).Draw(t, "w")
		h := rapid.IntRange(2, 8).Draw(t, "h")
		mines := rapid.IntRange(1, w*h-1).Draw(t, "mines")
		seed := rapid.Int64().Draw(t, "seed")
		x := rapid.IntRange(0, w-1).Draw(t, "x")
		y := rapid.IntRange(0, h-1).Draw(t, "y")

		g, err := NewGrid(w, h, mines, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("NewGrid: %v", err)
		}
		g.placeMines(x, y)
		want := referenceReveal(g, x, y)

		if err := g.Reveal(x, y); err != nil {
			t.Fatalf("Reveal: %v", err)
		}

		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				revealed := g.cells[row][col].State == Revealed
				if revealed != want[[2]int{col, row}] {
					t.Fatalf("cell (%d,%d): revealed=%v, reference=%v", col, row, revealed, want[[2]int{col, row}])
				}
			}
		}
		if g.Revealed() != len(want) || countState(g, Revealed) != len(want) {
			t.Fatalf("revealed counter %d, cells %d, reference %d", g.Revealed(), countState(g, Revealed), len(want))
		}
	})
}

func TestReveal_SingleMineFloodWins(t *testing.T) {
	g := gridWithMines(t, 4, 4, [2]int{3, 3})

	require.NoError(t, g.Reveal(0, 0))
	assert.Equal(t, 15, g.Revealed())
	assert.True(t, g.Over())
	assert.True(t, g.Won())

	assert.ErrorIs(t, g.Reveal(1, 1), ErrGameOver)
}

func TestReveal_MineLoses(t *testing.T) {
	g := gridWithMines(t, 4, 4, [2]int{3, 3}, [2]int{0, 3})

	require.NoError(t, g.Reveal(3, 3))
	assert.True(t, g.Over())
	assert.False(t, g.Won())

	corner, err := g.Cell(0, 3)
	require.NoError(t, err)
	assert.Equal(t, Revealed, corner.State, "every mine is shown on loss")
}

func TestReveal_FlaggedCellsSurviveFlood(t *testing.T) {
	g := gridWithMines(t, 4, 4, [2]int{3, 3})

	require.NoError(t, g.ToggleFlag(0, 1))
	require.NoError(t, g.Reveal(0, 0))

	cell, _ := g.Cell(0, 1)
	assert.Equal(t, Flagged, cell.State)
	assert.Equal(t, 14, g.Revealed())
	assert.False(t, g.Over())

	require.NoError(t, g.Reveal(0, 1), "revealing a flagged cell is a no-op")
	assert.Equal(t, 14, g.Revealed())

	require.NoError(t, g.ToggleFlag(0, 1))
	require.NoError(t, g.Reveal(0, 1))
	assert.True(t, g.Won())
}

func TestReveal_OutOfRange(t *testing.T) {
	g := gridWithMines(t, 4, 4, [2]int{3, 3})
	assert.ErrorIs(t, g.Reveal(-1, 0), ErrOutOfRange)
	assert.ErrorIs(t, g.Reveal(4, 0), ErrOutOfRange)
	assert.ErrorIs(t, g.ToggleFlag(0, 4), ErrOutOfRange)
	assert.Equal(t, 0, g.Revealed())
}

func TestToggleFlag_Bounds(t *testing.T) {
	g := gridWithMines(t, 4, 4, [2]int{3, 3}, [2]int{2, 3})

	require.NoError(t, g.ToggleFlag(0, 0))
	require.NoError(t, g.ToggleFlag(1, 0))
	assert.Equal(t, 0, g.FlagsLeft())
	assert.ErrorIs(t, g.ToggleFlag(2, 0), ErrNoFlagsLeft)

	require.NoError(t, g.ToggleFlag(0, 0))
	assert.Equal(t, 1, g.FlagsLeft())

	require.NoError(t, g.Reveal(0, 3))
	require.NoError(t, g.ToggleFlag(0, 3), "flagging a revealed cell is ignored")
	cell, _ := g.Cell(0, 3)
	assert.Equal(t, Revealed, cell.State)
	assert.Equal(t, 1, g.FlagsLeft())
}

// TestFlagCounterProperty tests Property 3: Flag Counter Bounds.
// *For any* sequence of flag toggles, the remaining flag count SHALL stay
// within [0, mines] and equal mines minus the number of flagged cells.
func TestFlagCounterProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, err := NewGrid(DefaultWidth, DefaultHeight, DefaultMines, rand.New(rand.NewSource(3)))
		if err != nil {
			t.Fatalf("NewGrid: %v", err)
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			x := rapid.IntRange(0, DefaultWidth-1).Draw(t, "x")
			y := rapid.IntRange(0, DefaultHeight-1).Draw(t, "y")
			err := g.ToggleFlag(x, y)
			if err != nil && err != ErrNoFlagsLeft {
				t.Fatalf("ToggleFlag: %v", err)
			}
			if g.FlagsLeft() < 0 || g.FlagsLeft() > g.Mines() {
				t.Fatalf("flags left %d out of bounds", g.FlagsLeft())
			}
			if g.FlagsLeft() != g.Mines()-countState(g, Flagged) {
				t.Fatalf("flags left %d but %d cells flagged", g.FlagsLeft(), countState(g, Flagged))
			}
		}
	})
}

func TestPlay_ModeToggleAndTaps(t *testing.T) {
	ctx := context.Background()
	p := &Play{grid: gridWithMines(t, 4, 4, [2]int{3, 3})}

	msg := p.Render()
	require.Len(t, msg.Actions, 5, "four grid rows and a control row")
	assert.Equal(t, CellAction(2, 1), msg.Actions[1][2].Data)

	_, err := p.Apply(ctx, surface.Event{Payload: ActionToggleMode})
	require.NoError(t, err)
	assert.Equal(t, ModeFlag, p.Mode())

	msg, err = p.Apply(ctx, surface.Event{Payload: CellAction(0, 1)})
	require.NoError(t, err)
	assert.Equal(t, "🚩", msg.Actions[1][0].Label)

	_, err = p.Apply(ctx, surface.Event{Payload: ActionToggleMode})
	require.NoError(t, err)
	_, err = p.Apply(ctx, surface.Event{Payload: CellAction(0, 0)})
	require.NoError(t, err)
	assert.False(t, p.Done())

	_, err = p.Apply(ctx, surface.Event{Payload: "c:x:1"})
	assert.ErrorIs(t, err, session.ErrUnknownAction)
	_, err = p.Apply(ctx, surface.Event{Payload: CellAction(9, 9)})
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = p.Apply(ctx, surface.Event{Payload: ActionQuit})
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, "quit", p.Result())
}

func TestPlay_WinRendersWithoutControls(t *testing.T) {
	p := &Play{grid: gridWithMines(t, 4, 4, [2]int{3, 3})}

	msg, err := p.Apply(context.Background(), surface.Event{Payload: CellAction(0, 0)})
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, "won", p.Result())
	assert.Len(t, msg.Actions, 4)
	assert.Contains(t, msg.Text, "cleared")
}

func TestParseCell(t *testing.T) {
	x, y, ok := parseCell(CellAction(3, 2))
	require.True(t, ok)
	assert.Equal(t, 3, x)
	assert.Equal(t, 2, y)

	for _, bad := range []string{"", "c:", "c:1", "c:a:b", "r:1:1"} {
		_, _, ok := parseCell(bad)
		assert.False(t, ok, bad)
	}
}
