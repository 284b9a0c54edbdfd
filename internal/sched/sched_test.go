package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsPeriodically(t *testing.T) {
	runner := NewRunner(clock.New())
	defer runner.Shutdown()

	var count atomic.Int64
	task := runner.Every(5*time.Millisecond, func() { count.Add(1) })

	require.Eventually(t, func() bool { return count.Load() >= 3 },
		time.Second, time.Millisecond)

	task.Stop()
	settled := count.Load() + 1 // one call may already be in flight
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, count.Load(), settled)
}

func TestVariableUsesReturnedDelay(t *testing.T) {
	runner := NewRunner(clock.New())
	defer runner.Shutdown()

	var count atomic.Int64
	runner.Variable(time.Millisecond, func() time.Duration {
		count.Add(1)
		return 5 * time.Millisecond
	})

	require.Eventually(t, func() bool { return count.Load() >= 3 },
		time.Second, time.Millisecond)
}

func TestVariableRetiresOnNonPositiveDelay(t *testing.T) {
	runner := NewRunner(clock.New())
	defer runner.Shutdown()

	var count atomic.Int64
	task := runner.Variable(time.Millisecond, func() time.Duration {
		count.Add(1)
		return 0
	})

	require.Eventually(t, func() bool { return count.Load() == 1 },
		time.Second, time.Millisecond)
	require.Eventually(t, task.stopped, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load())
}

func TestRegisterPrunesRetiredTasks(t *testing.T) {
	runner := NewRunner(clock.New())
	defer runner.Shutdown()

	// A pause/resume cycle registers a task and stops it again; the runner
	// must not grow with each cycle.
	for i := 0; i < 10; i++ {
		runner.Every(time.Hour, func() {}).Stop()
	}
	live := runner.Every(time.Hour, func() {})

	runner.mu.Lock()
	remaining := len(runner.tasks)
	runner.mu.Unlock()
	assert.Equal(t, 1, remaining)
	assert.False(t, live.stopped())
}

func TestTaskStopIsIdempotent(t *testing.T) {
	runner := NewRunner(clock.New())
	defer runner.Shutdown()

	task := runner.Every(time.Hour, func() {})
	task.Stop()
	task.Stop()
}

func TestShutdownWaitsForRunningFn(t *testing.T) {
	runner := NewRunner(clock.New())

	started := make(chan struct{})
	var finished atomic.Bool
	runner.Every(time.Millisecond, func() {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	<-started
	runner.Shutdown()
	assert.True(t, finished.Load())
}

func TestScheduleAfterShutdownNeverRuns(t *testing.T) {
	runner := NewRunner(clock.New())
	runner.Shutdown()

	var count atomic.Int64
	task := runner.Every(time.Millisecond, func() { count.Add(1) })
	runner.Variable(time.Millisecond, func() time.Duration {
		count.Add(1)
		return time.Millisecond
	})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), count.Load())
	task.Stop()
}
