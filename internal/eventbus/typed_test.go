package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tick struct{ n int }

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[tick]()
	ch := bus.Subscribe()
	bus.Publish(tick{n: 1})
	v := <-ch
	assert.Equal(t, 1, v.n)
	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	_, ok := <-ch1
	require.False(t, ok, "expected ch1 closed")
	_, ok = <-ch2
	require.False(t, ok, "expected ch2 closed")

	late := bus.Subscribe()
	_, ok = <-late
	require.False(t, ok, "subscribe after close returns a closed channel")
	bus.Publish(1)
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	ch := bus.Subscribe()
	bus.Close()
	assert.NotPanics(t, func() { bus.Unsubscribe(ch) })
}

func TestTypedBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewTypedWithBuffer[int](1)
	slow := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)
	assert.Equal(t, uint64(2), bus.Dropped())
	assert.Equal(t, 1, <-slow)
}
