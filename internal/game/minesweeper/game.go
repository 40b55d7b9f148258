package minesweeper

import (
	"context"

	"anya-bot/internal/session"
)

// Minesweeper registers the grid game with the game registry.
type Minesweeper struct {
	width, height, mines int
}

// NewGame creates the registrable game. Zero dimensions fall back to the
// 4x4 board with 4 mines.
func NewGame(width, height, mines int) *Minesweeper {
	if width <= 0 || height <= 0 || mines <= 0 {
		width, height, mines = DefaultWidth, DefaultHeight, DefaultMines
	}
	return &Minesweeper{width: width, height: height, mines: mines}
}

func (*Minesweeper) Name() string    { return "Minesweeper" }
func (*Minesweeper) Command() string { return "minesweeper" }

func (m *Minesweeper) Description() string {
	return "Clear the board without hitting a mine"
}

// Start creates a fresh board for userID.
func (m *Minesweeper) Start(_ context.Context, _ int64) (session.Engine, error) {
	p, err := NewPlay(m.width, m.height, m.mines, nil)
	if err != nil {
		return nil, err
	}
	return p, nil
}
