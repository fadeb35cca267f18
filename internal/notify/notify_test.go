package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	bus.Publish(Change{Op: OpWrite, StreamID: "wave", Version: 3, Count: 2})

	c := <-sub.C
	assert.Equal(t, OpWrite, c.Op)
	assert.Equal(t, "wave", c.StreamID)
	assert.Equal(t, uint64(3), c.Version)
	assert.Equal(t, 2, c.Count)
	assert.False(t, c.At.IsZero())
}

func TestBus_PrefixFilter(t *testing.T) {
	bus := NewBus(4)
	waves := bus.Subscribe("wave")
	other := bus.Subscribe("pump", "valve")

	bus.Publish(Change{Op: OpRemove, StreamID: "wave-1"})
	bus.Publish(Change{Op: OpDelete, StreamID: "valve-7"})

	require.Len(t, waves.C, 1)
	assert.Equal(t, "wave-1", (<-waves.C).StreamID)
	require.Len(t, other.C, 1)
	assert.Equal(t, OpDelete, (<-other.C).Op)
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe()

	for i := 0; i < 3; i++ {
		bus.Publish(Change{StreamID: "wave"})
	}
	assert.Len(t, sub.C, 1)
	assert.Equal(t, uint64(2), sub.Dropped())
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.Len())

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.Len())

	_, ok := <-sub.C
	assert.False(t, ok)

	bus.Publish(Change{StreamID: "wave"})
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "unknown", Op(9).String())
}
