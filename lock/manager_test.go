package lock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stationops/firecheck/events"
	"github.com/stationops/firecheck/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T) (*lock.Manager, *events.Broadcaster) {
	t.Helper()
	bus := events.NewBroadcaster(nil, 16, zap.NewNop())
	return lock.NewManager(bus, zap.NewNop()), bus
}

func watchLocks(t *testing.T, bus *events.Broadcaster, apparatusID int64) (<-chan *events.Event, func()) {
	t.Helper()
	ch := make(chan *events.Event, 64)
	unsub := bus.Subscribe(apparatusID, func(ev *events.Event) { ch <- ev })
	return ch, unsub
}

func waitType(t *testing.T, ch <-chan *events.Event, typ events.Type) *events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

func TestAcquire_FreeAndContended(t *testing.T) {
	m, _ := newManager(t)

	granted, current := m.Acquire(1, 100, 10, "Kim Reyes")
	require.NotNil(t, granted)
	assert.Nil(t, current)
	assert.Equal(t, int64(10), granted.HolderID)

	// Someone else hits the held compartment: denied, told who holds it.
	granted, current = m.Acquire(1, 100, 11, "Ada Chen")
	assert.Nil(t, granted)
	require.NotNil(t, current)
	assert.Equal(t, int64(10), current.HolderID)
	assert.Equal(t, "Kim Reyes", current.HolderName)

	// Same user re-acquires without error.
	granted, current = m.Acquire(1, 100, 10, "Kim Reyes")
	require.NotNil(t, granted)
	assert.Nil(t, current)

	// Other compartments stay independent.
	granted, current = m.Acquire(1, 101, 11, "Ada Chen")
	require.NotNil(t, granted)
	assert.Nil(t, current)
}

func TestAcquire_ConcurrentSingleWinner(t *testing.T) {
	m, _ := newManager(t)
	const n = 16
	var wg sync.WaitGroup
	wins := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			granted, _ := m.Acquire(1, 100, int64(i+1), "crew")
			wins[i] = granted != nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestTakeOver(t *testing.T) {
	m, bus := newManager(t)
	ch, unsub := watchLocks(t, bus, 1)
	defer unsub()

	m.Acquire(1, 100, 10, "Kim Reyes")

	newHold, prev := m.TakeOver(1, 100, 11, "Ada Chen")
	require.NotNil(t, newHold)
	require.NotNil(t, prev)
	assert.Equal(t, int64(11), newHold.HolderID)
	assert.Equal(t, int64(10), prev.HolderID)

	ev := waitType(t, ch, events.TypeCheckTakeOver)
	payload := ev.Payload.(events.TakeOverPayload)
	assert.Equal(t, "Kim Reyes", payload.PreviousName)
	assert.Equal(t, "Ada Chen", payload.NewName)

	holder := m.Holder(1, 100)
	require.NotNil(t, holder)
	assert.Equal(t, int64(11), holder.HolderID)

	// Take-over of a free compartment just grants it.
	newHold, prev = m.TakeOver(1, 101, 11, "Ada Chen")
	require.NotNil(t, newHold)
	assert.Nil(t, prev)
}

func TestRelease_OnlyHolder(t *testing.T) {
	m, _ := newManager(t)
	m.Acquire(1, 100, 10, "Kim Reyes")

	// Non-holder release is ignored.
	m.Release(1, 100, 11)
	require.NotNil(t, m.Holder(1, 100))

	m.Release(1, 100, 10)
	assert.Nil(t, m.Holder(1, 100))

	// Releasing a free compartment is a no-op.
	m.Release(1, 100, 10)
}

func TestReleaseAll(t *testing.T) {
	m, bus := newManager(t)
	m.Acquire(1, 100, 10, "Kim Reyes")
	m.Acquire(1, 101, 11, "Ada Chen")
	m.Acquire(2, 200, 12, "Lou Park")

	ch, unsub := watchLocks(t, bus, 1)
	defer unsub()

	m.ReleaseAll(1)
	assert.Empty(t, m.Holds(1))

	// Other apparatus untouched.
	require.Len(t, m.Holds(2), 1)

	freed := map[int64]bool{}
	for i := 0; i < 2; i++ {
		ev := waitType(t, ch, events.TypeLockChanged)
		payload := ev.Payload.(events.LockChangedPayload)
		assert.False(t, payload.Held)
		freed[payload.CompartmentID] = true
	}
	assert.True(t, freed[100])
	assert.True(t, freed[101])
}

func TestHoldsSnapshot(t *testing.T) {
	m, _ := newManager(t)
	assert.Empty(t, m.Holds(1))

	m.Acquire(1, 100, 10, "Kim Reyes")
	m.Acquire(1, 101, 11, "Ada Chen")

	holds := m.Holds(1)
	require.Len(t, holds, 2)
	byComp := map[int64]int64{}
	for _, h := range holds {
		byComp[h.CompartmentID] = h.HolderID
	}
	assert.Equal(t, int64(10), byComp[100])
	assert.Equal(t, int64(11), byComp[101])
}
