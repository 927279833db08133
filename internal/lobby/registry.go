package lobby

import (
	"sort"
	"sync"

	"tableside/internal/match"
)

// Factory builds a fresh match session for a room.
type Factory func(roomID string, players []match.Player) (match.Session, error)

type entry struct {
	config  match.Config
	factory Factory
}

// Registry maps game type ids to their configuration and constructor.
type Registry struct {
	mu    sync.RWMutex
	games map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{games: make(map[string]entry)}
}

// Register adds or replaces the game type cfg.ID.
func (r *Registry) Register(cfg match.Config, f Factory) {
	r.mu.Lock()
	r.games[cfg.ID] = entry{config: cfg, factory: f}
	r.mu.Unlock()
}

// Lookup returns the config and factory registered under id.
func (r *Registry) Lookup(id string) (match.Config, Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.games[id]
	return e.config, e.factory, ok
}

// Games lists the registered game configs ordered by id.
func (r *Registry) Games() []match.Config {
	r.mu.RLock()
	out := make([]match.Config, 0, len(r.games))
	for _, e := range r.games {
		out = append(out, e.config)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many game types are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
