package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Config selects and tunes the strategies evaluated on each trigger.
type Config struct {
	// Enabled lists strategy names in evaluation order. The first Go wins.
	Enabled         []string
	TwoSidedArb     TwoSidedArbConfig
	MispricingAlert MispricingAlertConfig
}

// Registry manages a named collection of strategies that can be looked up at
// runtime. It is safe for concurrent use.
type Registry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// NewDefaultRegistry registers every built-in strategy with its config.
func NewDefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	r.Register(TwoSidedArbName, NewTwoSidedArb(cfg.TwoSidedArb))
	r.Register(MispricingAlertName, NewMispricingAlert(cfg.MispricingAlert))
	return r
}

// Register adds a strategy under the given name, replacing any previous one.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
}

// Get retrieves a strategy by name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return s, nil
}

// Ordered resolves names to strategies, keeping the given order. Duplicates
// and unknown names are errors.
func (r *Registry) Ordered(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("strategy: no strategies enabled")
	}
	seen := make(map[string]bool, len(names))
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, fmt.Errorf("strategy %q: listed twice", n)
		}
		seen[n] = true
		s, err := r.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
