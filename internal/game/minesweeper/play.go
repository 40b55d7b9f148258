package minesweeper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"anya-bot/internal/session"
	"anya-bot/internal/surface"
)

// Mode decides what a cell tap does.
type Mode int

const (
	ModeReveal Mode = iota
	ModeFlag
)

// Action payloads understood by Play. Cell taps are "c:<x>:<y>".
const (
	ActionToggleMode = "mode"
	ActionQuit       = "quit"
	cellPrefix       = "c:"
)

// CellAction encodes a tap on (x, y).
func CellAction(x, y int) string {
	return fmt.Sprintf("%s%d:%d", cellPrefix, x, y)
}

// parseCell decodes a CellAction payload.
func parseCell(payload string) (int, int, bool) {
	rest, ok := strings.CutPrefix(payload, cellPrefix)
	if !ok {
		return 0, 0, false
	}
	xs, ys, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, false
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}

// Play couples a Grid with the player's current tap mode.
type Play struct {
	grid *Grid
	mode Mode
	quit bool
}

// NewPlay starts a board of the given size.
func NewPlay(width, height, mines int, rng *rand.Rand) (*Play, error) {
	g, err := NewGrid(width, height, mines, rng)
	if err != nil {
		return nil, err
	}
	return &Play{grid: g}, nil
}

// Apply handles cell taps, mode toggles and quitting.
func (p *Play) Apply(_ context.Context, ev surface.Event) (surface.Message, error) {
	switch ev.Payload {
	case ActionToggleMode:
		if p.mode == ModeReveal {
			p.mode = ModeFlag
		} else {
			p.mode = ModeReveal
		}
		return p.Render(), nil
	case ActionQuit:
		p.quit = true
		return p.Render(), nil
	}

	x, y, ok := parseCell(ev.Payload)
	if !ok {
		return surface.Message{}, session.ErrUnknownAction
	}

	var err error
	if p.mode == ModeFlag {
		err = p.grid.ToggleFlag(x, y)
	} else {
		err = p.grid.Reveal(x, y)
	}
	if errors.Is(err, ErrFlagInvariant) {
		return surface.Message{}, session.Fault(err)
	}
	if err != nil {
		return surface.Message{}, err
	}
	return p.Render(), nil
}

// Done reports whether the board is finished or abandoned.
func (p *Play) Done() bool {
	return p.quit || p.grid.Over()
}

// Result labels the finished board for metrics.
func (p *Play) Result() string {
	switch {
	case p.grid.Won():
		return "won"
	case p.grid.Over():
		return "lost"
	case p.quit:
		return "quit"
	}
	return "pending"
}

// Mode returns the current tap mode.
func (p *Play) Mode() Mode { return p.mode }

// Grid exposes the underlying board.
func (p *Play) Grid() *Grid { return p.grid }

func cellLabel(c Cell) string {
	switch c.State {
	case Flagged:
		return "🚩"
	case Revealed:
		if c.Mine {
			return "💣"
		}
		if c.Adjacent == 0 {
			return "·"
		}
		return strconv.Itoa(c.Adjacent)
	}
	return "⬜"
}

// Render draws the board as a grid of actions plus a control row.
func (p *Play) Render() surface.Message {
	g := p.grid

	var status string
	switch {
	case g.Won():
		status = "You cleared the field 🎉"
	case g.Over():
		status = "Boom 💥 You hit a mine."
	case p.quit:
		status = "Game abandoned."
	case p.mode == ModeFlag:
		status = fmt.Sprintf("Mode: 🚩 flag  |  flags left: %d", g.FlagsLeft())
	default:
		status = fmt.Sprintf("Mode: ⛏ reveal  |  flags left: %d", g.FlagsLeft())
	}

	msg := surface.Text(fmt.Sprintf("💣 Minesweeper %dx%d, %d mines\n%s", g.Width(), g.Height(), g.Mines(), status))
	for y := 0; y < g.Height(); y++ {
		row := make([]surface.Action, g.Width())
		for x := 0; x < g.Width(); x++ {
			row[x] = surface.Action{Label: cellLabel(g.cells[y][x]), Data: CellAction(x, y)}
		}
		msg = msg.Row(row...)
	}

	if p.Done() {
		return msg
	}

	toggle := "🚩 Flag mode"
	if p.mode == ModeFlag {
		toggle = "⛏ Reveal mode"
	}
	return msg.Row(
		surface.Action{Label: toggle, Data: ActionToggleMode},
		surface.Action{Label: "Quit", Data: ActionQuit},
	)
}
