package sink

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	a, err := bus.Subscribe("a", 4)
	require.NoError(t, err)
	b, err := bus.Subscribe("b", 4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, bus.TryPush(i))
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, i, <-a)
		assert.Equal(t, i, <-b)
	}
	assert.Equal(t, uint64(3), bus.Published())
}

func TestBus_DropOnFullBuffer(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	ch, err := bus.Subscribe("slow", 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		bus.TryPush(i)
	}

	stats, err := bus.Stats("slow")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Sent)
	assert.Equal(t, uint64(3), stats.Dropped)

	// The two oldest values are the ones that made it through.
	assert.Equal(t, 0, <-ch)
	assert.Equal(t, 1, <-ch)
}

func TestBus_TryPushWithoutSubscribers(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()
	assert.False(t, bus.TryPush(1))
	assert.Equal(t, uint64(1), bus.Published())
}

func TestBus_DuplicateSubscriber(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	_, err := bus.Subscribe("x", 1)
	require.NoError(t, err)
	_, err = bus.Subscribe("x", 1)
	assert.ErrorIs(t, err, ErrSubscriberExists)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	ch, err := bus.Subscribe("x", 1)
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe("x"))

	_, open := <-ch
	assert.False(t, open)

	assert.ErrorIs(t, bus.Unsubscribe("x"), ErrSubscriberNotFound)
	_, err = bus.Stats("x")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus[int]()

	ch, err := bus.Subscribe("x", 1)
	require.NoError(t, err)

	bus.Close()
	bus.Close() // idempotent

	_, open := <-ch
	assert.False(t, open)
	assert.False(t, bus.TryPush(1))

	_, err = bus.Subscribe("late", 1)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_ConcurrentProducers(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	_, err := bus.Subscribe("x", 1024)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bus.TryPush(i)
			}
		}()
	}
	wg.Wait()

	stats, err := bus.Stats("x")
	require.NoError(t, err)
	assert.Equal(t, uint64(800), stats.Sent+stats.Dropped)
	assert.Equal(t, uint64(800), bus.Published())
}
