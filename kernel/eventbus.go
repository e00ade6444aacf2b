package kernel

import (
	"sync"

	"go.uber.org/zap"
)

// ManagerEvent names the four events observable on the Manager:
// ready, error, moduleError, memoryLeaks.
type ManagerEvent string

const (
	EventReady       ManagerEvent = "ready"
	EventError       ManagerEvent = "error"
	EventModuleError ManagerEvent = "moduleError"
	EventMemoryLeaks ManagerEvent = "memoryLeaks"
)

// EventHandler receives a ManagerEvent's payload.
type EventHandler func(payload any)

// EventBus is the Manager-observable pub/sub channel for ready/error/
// moduleError/memoryLeaks. It is distinct from Manager.broadcastEvent, which
// walks RUNNING modules directly rather than a subscriber list.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[ManagerEvent][]EventHandler
	logger   *zap.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{handlers: make(map[ManagerEvent][]EventHandler), logger: logger}
}

// Subscribe registers handler for event name.
func (b *EventBus) Subscribe(event ManagerEvent, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish invokes every handler registered for event, isolating panics per
// handler so one bad subscriber cannot break delivery to the rest.
func (b *EventBus) Publish(event ManagerEvent, payload any) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[event]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		b.invoke(h, payload)
	}
}

func (b *EventBus) invoke(h EventHandler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", zap.Any("recover", r))
		}
	}()
	h(payload)
}
