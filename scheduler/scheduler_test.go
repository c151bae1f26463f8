package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddTicker_Fires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var ticks int32
	s.AddTicker("sweep", 20*time.Millisecond, func() {
		atomic.AddInt32(&ticks, 1)
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&ticks), int32(3))
}

func TestAddTicker_SameNameStopsOldTask(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var old, replacement int32
	s.AddTicker("sweep", 20*time.Millisecond, func() { atomic.AddInt32(&old, 1) })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("sweep", 20*time.Millisecond, func() { atomic.AddInt32(&replacement, 1) })
	time.Sleep(80 * time.Millisecond)

	snap := atomic.LoadInt32(&old)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&old), "replaced task must stop ticking")
	assert.Positive(t, atomic.LoadInt32(&replacement))
}

func TestRemove(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var ticks int32
	s.AddTicker("sweep", 20*time.Millisecond, func() { atomic.AddInt32(&ticks, 1) })
	time.Sleep(50 * time.Millisecond)

	assert.True(t, s.Remove("sweep"))
	snap := atomic.LoadInt32(&ticks)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&ticks), "removed task must stop ticking")

	assert.False(t, s.Remove("sweep"))
	assert.False(t, s.Remove("never-registered"))
}

func TestStop_StopsEverything(t *testing.T) {
	s := New(zap.NewNop())

	var a, b int32
	s.AddTicker("sweep", 20*time.Millisecond, func() { atomic.AddInt32(&a, 1) })
	s.AddTicker("session_gc", 20*time.Millisecond, func() { atomic.AddInt32(&b, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	// Give the task goroutines time to observe the stop signal.
	time.Sleep(30 * time.Millisecond)
	snapA, snapB := atomic.LoadInt32(&a), atomic.LoadInt32(&b)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snapA, atomic.LoadInt32(&a))
	assert.Equal(t, snapB, atomic.LoadInt32(&b))

	s.Stop() // double stop must not panic
}

func TestTasks_SortedSnapshot(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	require.Empty(t, s.Tasks())
	s.AddTicker("session_gc", time.Hour, func() {})
	s.AddTicker("check_sweeper", 5*time.Minute, func() {})

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "check_sweeper", tasks[0].Name)
	assert.Equal(t, 5*time.Minute, tasks[0].Interval)
	assert.Equal(t, "session_gc", tasks[1].Name)

	s.Remove("session_gc")
	tasks = s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "check_sweeper", tasks[0].Name)
}

func TestTicker_SurvivesPanickingTask(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var ticks int32
	s.AddTicker("sweep", 20*time.Millisecond, func() {
		atomic.AddInt32(&ticks, 1)
		panic("sweep blew up")
	})

	time.Sleep(120 * time.Millisecond)
	// The panic is recovered per tick, so the task keeps firing.
	assert.GreaterOrEqual(t, atomic.LoadInt32(&ticks), int32(3))
}
