// Package sched runs a pipeline's background loops on one shared runner so
// shutdown can stop and wait for all of them in a single place.
package sched

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Runner owns the goroutines behind periodic tasks. The zero value is not
// usable; construct with NewRunner.
type Runner struct {
	clk clock.Clock

	mu     sync.Mutex
	tasks  []*Task
	closed bool
	wg     sync.WaitGroup
}

// Task is one scheduled loop. Stop cancels the pending wait; a function
// call already in progress runs to completion.
type Task struct {
	once sync.Once
	stop chan struct{}
}

// Stop is idempotent and safe from any goroutine.
func (t *Task) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *Task) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func NewRunner(clk clock.Clock) *Runner {
	return &Runner{clk: clk}
}

// Every runs fn on a fixed period until the task or the runner stops.
func (r *Runner) Every(interval time.Duration, fn func()) *Task {
	task := r.register()
	if task.stopped() {
		return task
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := r.clk.Ticker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-task.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return task
}

// Variable waits initial, runs fn, then waits however long fn returned,
// indefinitely. A non-positive return stops the loop; this lets the task
// retire itself without racing an external Stop.
func (r *Runner) Variable(initial time.Duration, fn func() time.Duration) *Task {
	task := r.register()
	if task.stopped() {
		return task
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := r.clk.Timer(initial)
		defer timer.Stop()
		for {
			select {
			case <-task.stop:
				return
			case <-timer.C:
				next := fn()
				if next <= 0 {
					task.Stop()
					return
				}
				timer.Reset(next)
			}
		}
	}()
	return task
}

// Shutdown stops every task and waits for running functions to finish.
// Tasks scheduled afterwards never run.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.closed = true
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
	r.wg.Wait()
}

// register adds a task, dropping any that have retired since the last call
// so long-lived runners do not accumulate stopped entries.
func (r *Runner) register() *Task {
	t := &Task{stop: make(chan struct{})}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Stop()
		return t
	}
	kept := r.tasks[:0]
	for _, old := range r.tasks {
		if !old.stopped() {
			kept = append(kept, old)
		}
	}
	for i := len(kept); i < len(r.tasks); i++ {
		r.tasks[i] = nil
	}
	r.tasks = append(kept, t)
	r.mu.Unlock()
	return t
}
