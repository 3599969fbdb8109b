package engine

import (
	"errors"
	"fmt"
	"sort"

	"hybrid-grid-bot-go/internal/models"
)

// GridProName is the registry name of the profile-adaptive grid engine.
const GridProName = "grid_pro"

var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is a per-instrument decision engine.
type Strategy interface {
	Name() string
	Process(history []models.Bar, account models.AccountSnapshot) (*Decision, error)
	Reject(clientOrderID string) bool
	RecordTrade(t models.TradeRecord)
	Snapshot() *models.BotState
	Restore(state *models.BotState)
}

// Constructor builds a fresh strategy for one instrument.
type Constructor func(symbol string, cfg models.StrategyConfig) Strategy

// Registry maps strategy names to constructors. The host fills it at
// startup; nothing registers itself.
type Registry struct {
	constructors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor. Names must be unique.
func (r *Registry) Register(name string, c Constructor) error {
	if name == "" || c == nil {
		return fmt.Errorf("invalid registration for %q", name)
	}
	if _, exists := r.constructors[name]; exists {
		return fmt.Errorf("strategy %q already registered", name)
	}
	r.constructors[name] = c
	return nil
}

// New builds a strategy by name.
func (r *Registry) New(name, symbol string, cfg models.StrategyConfig) (Strategy, error) {
	c, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return c(symbol, cfg), nil
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins adds the strategies shipped with this module.
func RegisterBuiltins(r *Registry) error {
	return r.Register(GridProName, func(symbol string, cfg models.StrategyConfig) Strategy {
		return New(symbol, cfg)
	})
}
