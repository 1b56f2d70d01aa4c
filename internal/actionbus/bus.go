// Package actionbus notifies registered listeners of completed user actions.
package actionbus

import (
	"context"
	"sync"

	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
)

// Listener receives every dispatched action. Next must not block the caller.
type Listener interface {
	ID() string
	Next(ctx context.Context, action *models.UserAction)
}

// Handle removes a registration
type Handle interface {
	Unregister()
}

// Bus fans actions out to the registered listeners
type Bus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
	logger    *zap.Logger
}

// New creates an empty Bus
func New(logger *zap.Logger) *Bus {
	return &Bus{
		listeners: make(map[uint64]Listener),
		logger:    logger,
	}
}

// Register adds a listener and returns the handle that removes it
func (b *Bus) Register(l Listener) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[id] = l
	b.logger.Info("registered action listener", zap.String("listener", l.ID()))

	return &handle{bus: b, id: id}
}

// Dispatch hands the action to every listener. A panicking listener is logged
// and does not affect the others or the caller.
func (b *Bus) Dispatch(ctx context.Context, action *models.UserAction) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		b.notify(ctx, l, action)
	}
}

func (b *Bus) notify(ctx context.Context, l Listener, action *models.UserAction) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("action listener panicked",
				zap.String("listener", l.ID()),
				zap.Any("panic", r))
		}
	}()
	l.Next(ctx, action)
}

// Len returns the number of registered listeners
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

type handle struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

func (h *handle) Unregister() {
	h.once.Do(func() {
		h.bus.mu.Lock()
		defer h.bus.mu.Unlock()
		if l, ok := h.bus.listeners[h.id]; ok {
			delete(h.bus.listeners, h.id)
			h.bus.logger.Info("unregistered action listener", zap.String("listener", l.ID()))
		}
	})
}
