package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusFire(t *testing.T) {
	bus := NewEventBus()
	listener := &struct{ name string }{"window"}

	var got EventContext
	ok := bus.Register(EVENT_CODE_RESIZED, listener, func(code SystemEventCode, sender, inst interface{}, data EventContext) bool {
		assert.Equal(t, EVENT_CODE_RESIZED, code)
		assert.Same(t, listener, inst)
		got = data
		return true
	})
	assert.True(t, ok)

	var ctx EventContext
	ctx.Data.U32[0] = 800
	ctx.Data.U32[1] = 600
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, uint32(800), got.Data.U32[0])
	assert.Equal(t, uint32(600), got.Data.U32[1])

	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
}

func TestEventBusHandledStopsPropagation(t *testing.T) {
	bus := NewEventBus()
	first, second := new(int), new(int)
	calls := 0

	bus.Register(EVENT_CODE_APPLICATION_QUIT, first, func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		calls++
		return true
	})
	bus.Register(EVENT_CODE_APPLICATION_QUIT, second, func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		calls++
		return true
	})
	bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{})
	assert.Equal(t, 1, calls)
}

func TestEventBusRegistration(t *testing.T) {
	bus := NewEventBus()
	listener := new(int)
	fn := func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }

	assert.True(t, bus.Register(EVENT_CODE_DEVICE_LOST, listener, fn))
	assert.False(t, bus.Register(EVENT_CODE_DEVICE_LOST, listener, fn))
	assert.False(t, bus.Register(EVENT_CODE_DEVICE_LOST, listener, nil))
	assert.False(t, bus.Register(-1, listener, fn))

	assert.True(t, bus.Unregister(EVENT_CODE_DEVICE_LOST, listener))
	assert.False(t, bus.Unregister(EVENT_CODE_DEVICE_LOST, listener))

	bus.Register(EVENT_CODE_DEVICE_LOST, listener, fn)
	assert.NoError(t, bus.Shutdown())
	assert.False(t, bus.Unregister(EVENT_CODE_DEVICE_LOST, listener))
}
