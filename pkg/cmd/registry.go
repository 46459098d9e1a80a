package cmd

import (
	"github.com/dukex/applyflow/pkg/timers"
	"github.com/dukex/applyflow/pkg/timers/handlers"
)

// NewTimerRegistry registers the handler of every timer type.
func NewTimerRegistry(deps handlers.Dependencies) (*timers.Registry, error) {
	registry := timers.NewRegistry()

	err := handlers.New(deps).Register(registry)
	if err != nil {
		return nil, err
	}

	return registry, nil
}
