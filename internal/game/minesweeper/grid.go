// Package minesweeper implements a small minesweeper grid.
//
// Mines are placed on the first reveal and never on the revealed cell, so
// the opening move is always safe. Zero cells are flood-filled with an
// explicit stack.
package minesweeper

import (
	"errors"
	"math/rand"
	"time"
)

// Default board used by the bot.
const (
	DefaultWidth  = 4
	DefaultHeight = 4
	DefaultMines  = 4
)

var (
	ErrOutOfRange    = errors.New("minesweeper: cell out of range")
	ErrGameOver      = errors.New("minesweeper: game is over")
	ErrNoFlagsLeft   = errors.New("minesweeper: no flags left")
	ErrBadBoard      = errors.New("minesweeper: mines must leave at least one safe cell")
	ErrFlagInvariant = errors.New("minesweeper: flag counter out of bounds")
)

// CellState is what the player can see of a cell.
type CellState int

const (
	Hidden CellState = iota
	Revealed
	Flagged
)

// Cell is one square of the grid.
type Cell struct {
	Mine     bool
	Adjacent int
	State    CellState
}

// Grid is a minesweeper board.
type Grid struct {
	width, height int
	mines         int
	cells         [][]Cell // cells[y][x]
	flagsLeft     int
	revealed      int
	placed        bool
	over          bool
	won           bool
	rng           *rand.Rand
}

// NewGrid creates an empty board. Mines are placed on the first reveal.
// A nil rng is seeded from the clock.
func NewGrid(width, height, mines int, rng *rand.Rand) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrOutOfRange
	}
	if mines <= 0 || mines >= width*height {
		return nil, ErrBadBoard
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	cells := make([][]Cell, height)
	for y := range cells {
		cells[y] = make([]Cell, width)
	}
	return &Grid{
		width:     width,
		height:    height,
		mines:     mines,
		cells:     cells,
		flagsLeft: mines,
		rng:       rng,
	}, nil
}

func (g *Grid) inBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// neighbours calls fn for every in-bounds cell around (x, y).
func (g *Grid) neighbours(x, y int, fn func(nx, ny int)) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if g.inBounds(nx, ny) {
				fn(nx, ny)
			}
		}
	}
}

// placeMines scatters mines uniformly over every cell except (sx, sy).
func (g *Grid) placeMines(sx, sy int) {
	candidates := make([]int, 0, g.width*g.height-1)
	for i := 0; i < g.width*g.height; i++ {
		if i != sy*g.width+sx {
			candidates = append(candidates, i)
		}
	}
	g.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	g.layMines(candidates[:g.mines])
}

func (g *Grid) layMines(positions []int) {
	for _, p := range positions {
		g.cells[p/g.width][p%g.width].Mine = true
	}
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			n := 0
			g.neighbours(x, y, func(nx, ny int) {
				if g.cells[ny][nx].Mine {
					n++
				}
			})
			g.cells[y][x].Adjacent = n
		}
	}
	g.placed = true
}

// Reveal uncovers (x, y). It is a no-op on revealed or flagged cells and
// once the game is over.
func (g *Grid) Reveal(x, y int) error {
	if !g.inBounds(x, y) {
		return ErrOutOfRange
	}
	if g.over {
		return ErrGameOver
	}
	if g.cells[y][x].State != Hidden {
		return nil
	}
	if !g.placed {
		g.placeMines(x, y)
	}

	if g.cells[y][x].Mine {
		g.over = true
		g.revealMines()
		return nil
	}

	g.flood(x, y)
	if g.revealed == g.width*g.height-g.mines {
		g.over = true
		g.won = true
	}
	return nil
}

// flood reveals (x, y) and spreads through zero cells. Each cell moves from
// hidden to revealed at most once; flagged cells are left alone.
func (g *Grid) flood(x, y int) {
	stack := [][2]int{{x, y}}
	g.cells[y][x].State = Revealed
	g.revealed++

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if g.cells[top[1]][top[0]].Adjacent != 0 {
			continue
		}
		g.neighbours(top[0], top[1], func(nx, ny int) {
			c := &g.cells[ny][nx]
			if c.State != Hidden || c.Mine {
				return
			}
			c.State = Revealed
			g.revealed++
			stack = append(stack, [2]int{nx, ny})
		})
	}
}

func (g *Grid) revealMines() {
	for y := range g.cells {
		for x := range g.cells[y] {
			if g.cells[y][x].Mine {
				g.cells[y][x].State = Revealed
			}
		}
	}
}

// ToggleFlag flips (x, y) between hidden and flagged. Revealed cells are
// ignored. Placing a flag with none left returns ErrNoFlagsLeft.
func (g *Grid) ToggleFlag(x, y int) error {
	if !g.inBounds(x, y) {
		return ErrOutOfRange
	}
	if g.over {
		return ErrGameOver
	}

	c := &g.cells[y][x]
	switch c.State {
	case Hidden:
		if g.flagsLeft == 0 {
			return ErrNoFlagsLeft
		}
		c.State = Flagged
		g.flagsLeft--
	case Flagged:
		c.State = Hidden
		g.flagsLeft++
	}

	if g.flagsLeft < 0 || g.flagsLeft > g.mines {
		return ErrFlagInvariant
	}
	return nil
}

// Cell returns a copy of the cell at (x, y).
func (g *Grid) Cell(x, y int) (Cell, error) {
	if !g.inBounds(x, y) {
		return Cell{}, ErrOutOfRange
	}
	return g.cells[y][x], nil
}

func (g *Grid) Width() int     { return g.width }
func (g *Grid) Height() int    { return g.height }
func (g *Grid) Mines() int     { return g.mines }
func (g *Grid) FlagsLeft() int { return g.flagsLeft }
func (g *Grid) Revealed() int  { return g.revealed }
func (g *Grid) Placed() bool   { return g.placed }
func (g *Grid) Over() bool     { return g.over }
func (g *Grid) Won() bool      { return g.won }
