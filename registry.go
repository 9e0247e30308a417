package main

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// GameRegistry maps game names to live games. Its lock covers only the
// map itself; callers look a game up, release the registry, then work
// under the game's own lock. Holding both at once is never needed and
// never done, which keeps unrelated games from blocking each other.
type GameRegistry struct {
	mu    sync.RWMutex
	games map[string]*Game
}

func newGameRegistry() *GameRegistry {
	return &GameRegistry{
		games: make(map[string]*Game),
	}
}

func (r *GameRegistry) Create(g *Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.games[g.Name]; exists {
		return fmt.Errorf("game %q: %w", g.Name, errAlreadyExists)
	}
	r.games[g.Name] = g
	return nil
}

func (r *GameRegistry) Get(name string) (*Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, exists := r.games[name]
	if !exists {
		return nil, fmt.Errorf("game %q: %w", name, errNotFound)
	}
	return g, nil
}

func (r *GameRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.games, name)
}

// List snapshots every game. The game references are collected under
// the registry read lock, then summarized under each game's own lock
// after the registry is released.
func (r *GameRegistry) List() []GameSummary {
	r.mu.RLock()
	games := make([]*Game, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	r.mu.RUnlock()

	summaries := make([]GameSummary, 0, len(games))
	for _, g := range games {
		summaries = append(summaries, g.Summary())
	}
	slices.SortFunc(summaries, func(a, b GameSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return summaries
}
