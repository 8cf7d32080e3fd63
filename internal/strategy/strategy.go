// Package strategy defines the Strategy interface for signal-generating
// trading strategies and provides a Registry for managing multiple strategy
// implementations.
package strategy

import (
	"sort"

	"marlin/internal/domain"
)

// Params is a per-strategy configuration map, e.g. {"short": 10, "long": 30}.
type Params map[string]float64

// Get returns the parameter value for key, or def when the key is absent.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// GenerateSignals maps one symbol's date-ascending closing prices to a
	// series of dated signals. It is a pure function: no state is kept
	// between calls. Rows lacking enough history for a required indicator
	// are dropped from the output, not signaled.
	GenerateSignals(series []domain.PricePoint, params Params) []domain.SignalPoint
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
