// Package dispatch batches events and moves them to the backend, spilling to
// the offline spool whenever delivery fails.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newsroomkit/beacon-go/internal/offline"
	"github.com/newsroomkit/beacon-go/internal/sched"
	"github.com/newsroomkit/beacon-go/pkg/event"
	"github.com/newsroomkit/beacon-go/pkg/transport"
)

// Config holds the batching knobs.
type Config struct {
	// BatchSize triggers an immediate flush when the buffer reaches it.
	BatchSize int
	// FlushInterval is the timer-driven flush period.
	FlushInterval time.Duration
	// MaxRetries bounds delivery attempts per spooled event.
	MaxRetries int
}

// Dispatcher owns the in-memory buffer of events that have not yet been
// persisted or delivered. Delivery is at least once: a crash between a
// successful send and the spool acknowledgment replays events.
type Dispatcher struct {
	cfg       Config
	transport transport.Transport
	spool     *offline.Spool
	runner    *sched.Runner
	log       *zap.Logger

	mu     sync.Mutex
	buffer []event.Event

	// flushMu makes flushes single flight so two triggers cannot send the
	// same spooled events twice concurrently.
	flushMu sync.Mutex

	task *sched.Task
}

func NewDispatcher(cfg Config, tr transport.Transport, spool *offline.Spool, runner *sched.Runner, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		transport: tr,
		spool:     spool,
		runner:    runner,
		log:       log,
	}
}

// Start arms the periodic flush timer.
func (d *Dispatcher) Start() {
	d.task = d.runner.Every(d.cfg.FlushInterval, func() { d.Flush() })
}

// Stop cancels the flush timer and runs a final flush. An in-flight send is
// allowed to finish first; nothing is aborted mid-request.
func (d *Dispatcher) Stop() {
	if d.task != nil {
		d.task.Stop()
	}
	d.Flush()
}

// Enqueue buffers one event. Reaching the batch size triggers a flush off
// the caller's goroutine; tracking calls never wait on the network.
func (d *Dispatcher) Enqueue(ev event.Event) {
	d.mu.Lock()
	d.buffer = append(d.buffer, ev)
	full := len(d.buffer) >= d.cfg.BatchSize
	d.mu.Unlock()

	if full {
		go d.Flush()
	}
}

// Flush swaps the buffer out, merges spooled events ahead of it so earlier
// failures keep temporal order, and sends everything as one request.
// Failure moves the swapped buffer into the spool and charges a retry to
// each spooled event that was attempted.
func (d *Dispatcher) Flush() {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	buffered := d.buffer
	d.buffer = nil
	d.mu.Unlock()

	pending := d.spool.FetchPending()
	if len(buffered) == 0 && len(pending) == 0 {
		return
	}

	batch := make([]event.Event, 0, len(pending)+len(buffered))
	for _, se := range pending {
		batch = append(batch, se.Event)
	}
	batch = append(batch, buffered...)

	if d.send(batch) {
		d.ackPending(pending)
		d.log.Debug("batch delivered",
			zap.Int("events", len(batch)),
			zap.Int("replayed", len(pending)))
		return
	}

	for _, ev := range buffered {
		d.spool.Store(ev)
	}
	for _, se := range pending {
		d.spool.IncrementRetry(se.ID, d.cfg.MaxRetries)
	}
	d.log.Warn("batch delivery failed, events spooled",
		zap.Int("buffered", len(buffered)),
		zap.Int("retried", len(pending)))
}

// RetryOfflineEvents flushes only what the spool holds; the live buffer is
// left for its own triggers. Used on network-available transitions.
func (d *Dispatcher) RetryOfflineEvents() {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	pending := d.spool.FetchPending()
	if len(pending) == 0 {
		return
	}

	batch := make([]event.Event, 0, len(pending))
	for _, se := range pending {
		batch = append(batch, se.Event)
	}

	if d.send(batch) {
		d.ackPending(pending)
		d.log.Debug("spooled events delivered", zap.Int("events", len(batch)))
		return
	}

	for _, se := range pending {
		d.spool.IncrementRetry(se.ID, d.cfg.MaxRetries)
	}
}

// BufferLen reports how many events wait in memory, not counting the spool.
func (d *Dispatcher) BufferLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffer)
}

func (d *Dispatcher) send(batch []event.Event) bool {
	result, err := d.transport.Send(context.Background(), batch)
	if err != nil {
		d.log.Warn("batch send failed", zap.Error(err), zap.Int("events", len(batch)))
		return false
	}
	if !result.OK() {
		d.log.Warn("batch rejected by server",
			zap.Int("status", result.Status),
			zap.Int("events", len(batch)))
		return false
	}
	return true
}

func (d *Dispatcher) ackPending(pending []event.StoredEvent) {
	if len(pending) == 0 {
		return
	}
	ids := make([]string, 0, len(pending))
	for _, se := range pending {
		ids = append(ids, se.ID)
	}
	d.spool.Delete(ids)
}
