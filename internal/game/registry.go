package game

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownGame is returned by Lookup for unregistered commands.
var ErrUnknownGame = errors.New("game: unknown game")

// Registry manages game registration and lookup by command.
type Registry struct {
	games map[string]Game
	mu    sync.RWMutex
}

// NewRegistry creates a new game registry.
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]Game),
	}
}

// Register adds a game to the registry.
// Registering a command twice is an error.
func (r *Registry) Register(g Game) error {
	if g == nil {
		return fmt.Errorf("cannot register nil game")
	}
	if g.Command() == "" {
		return fmt.Errorf("game command cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.games[g.Command()]; exists {
		return fmt.Errorf("game %q already registered", g.Command())
	}
	r.games[g.Command()] = g
	return nil
}

// Get retrieves a game by its command.
func (r *Registry) Get(command string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[strings.TrimPrefix(command, "/")]
	return g, ok
}

// Lookup is Get with an error for unknown commands.
func (r *Registry) Lookup(command string) (Game, error) {
	g, ok := r.Get(command)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, command)
	}
	return g, nil
}

// List returns all registered games sorted by command.
func (r *Registry) List() []Game {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]Game, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].Command() < games[j].Command()
	})
	return games
}

// Commands returns all registered game commands, sorted.
func (r *Registry) Commands() []string {
	games := r.List()
	commands := make([]string, len(games))
	for i, g := range games {
		commands[i] = g.Command()
	}
	return commands
}

// Count returns the number of registered games.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
