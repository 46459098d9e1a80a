package timers

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukex/applyflow/pkg/models"
)

// Handler runs a due timer. A nil error marks the timer executed; anything else leaves it
// pending for redelivery.
type Handler func(ctx context.Context, timer *models.ScheduledTimer) error

// Registry maps each timer type to exactly one handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.TimerType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.TimerType]Handler)}
}

// Register binds a handler to a timer type. Registering a type twice is an error.
func (r *Registry) Register(timerType models.TimerType, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[timerType]; exists {
		return fmt.Errorf("handler for timer type '%s' already registered", timerType)
	}

	r.handlers[timerType] = handler

	return nil
}

// Handler returns the handler bound to a timer type.
func (r *Registry) Handler(timerType models.TimerType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[timerType]

	return h, ok
}

// Types returns the registered timer types.
func (r *Registry) Types() []models.TimerType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.TimerType, 0, len(r.handlers))
	for _, t := range models.TimerTypes() {
		if _, ok := r.handlers[t]; ok {
			types = append(types, t)
		}
	}

	return types
}
