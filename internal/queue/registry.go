package queue

import (
	"context"
	"sort"
	"sync"

	"hookbridge/pkg/models"
)

// HandlerFunc processes one event and reports how it went. Handlers must
// honour ctx cancellation; a handler that ignores it keeps its worker busy.
type HandlerFunc func(ctx context.Context, event models.InboundEvent) models.ProcessingOutcome

type Registry struct {
	mu       sync.RWMutex
	handlers map[models.EventType]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.EventType]HandlerFunc)}
}

// Register binds handler to eventType, replacing any previous binding.
func (r *Registry) Register(eventType models.EventType, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = handler
}

func (r *Registry) Lookup(eventType models.EventType) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	return h, ok
}

func (r *Registry) Types() []models.EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]models.EventType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
