// Package heartbeat emits periodic engagement pings whose cadence adapts to
// the reader: frequent while they interact, backing off toward a ceiling
// while they idle.
package heartbeat

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/newsroomkit/beacon-go/internal/sched"
)

// TickFunc receives each heartbeat's accumulated engagement seconds and the
// 1-based ping ordinal within the session.
type TickFunc func(activeTimeSeconds, pingCounter int64)

// Config holds the cadence parameters.
type Config struct {
	// BaseInterval is the wait between pings while the reader is engaged.
	BaseInterval time.Duration
	// MaxInterval caps the backed-off wait.
	MaxInterval time.Duration
	// InactivityThreshold is how long without interaction counts as idle.
	InactivityThreshold time.Duration
}

// Generator drives the adaptive ping schedule. It starts stopped; Pause and
// Resume freeze and continue it without losing the session counters, while
// ResetSession zeroes them for a fresh session.
type Generator struct {
	cfg    Config
	clk    clock.Clock
	runner *sched.Runner
	emit   TickFunc
	log    *zap.Logger

	mu              sync.Mutex
	running         bool
	interval        time.Duration
	lastInteraction time.Time
	runningSince    time.Time
	activeTime      time.Duration
	pingCounter     int64
	task            *sched.Task
	// gen identifies the current schedule; a tick carrying an older gen
	// fired before its schedule was replaced and must retire.
	gen uint64
}

func NewGenerator(cfg Config, clk clock.Clock, runner *sched.Runner, emit TickFunc, log *zap.Logger) *Generator {
	return &Generator{
		cfg:      cfg,
		clk:      clk,
		runner:   runner,
		emit:     emit,
		log:      log,
		interval: cfg.BaseInterval,
	}
}

// Start begins the schedule with a fresh ping counter. Opening the app is
// itself an interaction, so the idle clock starts now.
func (g *Generator) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return
	}
	now := g.clk.Now()
	g.running = true
	g.pingCounter = 0
	g.lastInteraction = now
	g.runningSince = now
	g.schedule()
	g.log.Debug("heartbeat started", zap.Duration("interval", g.interval))
}

// Pause cancels the pending ping and freezes active-time accrual. Counters
// survive for Resume.
func (g *Generator) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return
	}
	g.running = false
	g.activeTime += g.clk.Now().Sub(g.runningSince)
	if g.task != nil {
		g.task.Stop()
		g.task = nil
	}
	g.log.Debug("heartbeat paused", zap.Duration("active_time", g.activeTime))
}

// Resume continues the schedule where Pause left it, waiting the current
// interval before the next ping.
func (g *Generator) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return
	}
	g.running = true
	g.runningSince = g.clk.Now()
	g.schedule()
	g.log.Debug("heartbeat resumed", zap.Duration("interval", g.interval))
}

// ResetSession zeroes the ping counter and active-time accumulator and, if
// running, restarts the wait at the base interval. Called on session
// rotation only; pause and resume keep counters.
func (g *Generator) ResetSession() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()
	g.pingCounter = 0
	g.activeTime = 0
	g.interval = g.cfg.BaseInterval
	g.lastInteraction = now
	if g.running {
		g.runningSince = now
		if g.task != nil {
			g.task.Stop()
		}
		g.schedule()
	}
}

// RecordInteraction marks the reader active, snapping the interval back to
// base. The pending wait is not rescheduled; the reset takes effect at the
// next tick.
func (g *Generator) RecordInteraction() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastInteraction = g.clk.Now()
	g.interval = g.cfg.BaseInterval
}

// schedule replaces the pending wait with a fresh task. Caller holds the
// lock. Stopping a task does not interrupt a tick already past its timer,
// so each schedule carries its own gen for tick to check against.
func (g *Generator) schedule() {
	g.gen++
	gen := g.gen
	g.task = g.runner.Variable(g.interval, func() time.Duration {
		return g.tick(gen)
	})
}

// tick runs on the scheduler goroutine; its return value is the next wait.
func (g *Generator) tick(gen uint64) time.Duration {
	g.mu.Lock()
	if !g.running || gen != g.gen {
		g.mu.Unlock()
		return 0
	}
	active, pings, next := g.computeTick(g.clk.Now())
	emit := g.emit
	g.mu.Unlock()

	emit(active, pings)
	return next
}

// computeTick advances the cadence state for a ping at now and reports what
// the ping should carry. Caller holds the lock.
func (g *Generator) computeTick(now time.Time) (activeSeconds, pingCounter int64, next time.Duration) {
	if now.Sub(g.lastInteraction) > g.cfg.InactivityThreshold {
		g.interval = min(time.Duration(float64(g.interval)*1.5), g.cfg.MaxInterval)
	} else {
		g.interval = g.cfg.BaseInterval
	}
	g.pingCounter++

	active := g.activeTime + now.Sub(g.runningSince)
	return int64(active / time.Second), g.pingCounter, g.interval
}
