package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	var got any
	bus.Subscribe(EventReady, func(payload any) { got = payload })
	bus.Publish(EventReady, []ModuleStatus{{Name: "bot"}})

	statuses, ok := got.([]ModuleStatus)
	assert.True(t, ok)
	assert.Equal(t, "bot", statuses[0].Name)
}

func TestEventBusHandlerPanicIsolated(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	var secondCalled bool
	bus.Subscribe(EventError, func(payload any) { panic("boom") })
	bus.Subscribe(EventError, func(payload any) { secondCalled = true })

	assert.NotPanics(t, func() { bus.Publish(EventError, nil) })
	assert.True(t, secondCalled, "a panicking handler must not block delivery to the rest")
}

func TestEventBusIgnoresUnrelatedEvent(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	called := false
	bus.Subscribe(EventReady, func(payload any) { called = true })
	bus.Publish(EventModuleError, nil)
	assert.False(t, called)
}
