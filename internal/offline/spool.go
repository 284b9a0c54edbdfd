// Package offline is the durable spool between event producers and the
// network dispatcher. Everything that has not been acknowledged by the
// backend lives here, bounded in count and age.
package offline

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsroomkit/beacon-go/pkg/event"
	"github.com/newsroomkit/beacon-go/pkg/storage"
)

const spoolKey = "offline_events"

// Spool keeps the pending events in memory and mirrors every mutation to
// the backing store as one atomic whole-collection write. Order is oldest
// first throughout.
type Spool struct {
	store     storage.Store
	clk       clock.Clock
	maxEvents int
	log       *zap.Logger

	mu     sync.Mutex
	events []event.StoredEvent
}

// NewSpool loads whatever the previous process left behind. Unreadable or
// unparseable state is discarded wholesale: losing the spool is recoverable,
// wedging every future write on a corrupt file is not.
func NewSpool(store storage.Store, clk clock.Clock, maxEvents int, log *zap.Logger) *Spool {
	s := &Spool{
		store:     store,
		clk:       clk,
		maxEvents: maxEvents,
		log:       log,
	}
	s.load()
	return s
}

// Store wraps ev and appends it. When the cap is exceeded the oldest
// entries are evicted to make room; that loss is deliberate and logged.
func (s *Spool) Store(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event.StoredEvent{
		ID:        uuid.NewString(),
		Event:     ev,
		CreatedAt: s.clk.Now().UnixMilli(),
	})

	if over := len(s.events) - s.maxEvents; over > 0 {
		s.events = s.events[over:]
		s.log.Warn("offline spool full, evicted oldest events",
			zap.Int("evicted", over),
			zap.Int("max_events", s.maxEvents))
	}

	s.persist()
}

// FetchPending returns an oldest-first snapshot. Later mutations do not
// affect the returned slice.
func (s *Spool) FetchPending() []event.StoredEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]event.StoredEvent, len(s.events))
	copy(snapshot, s.events)
	return snapshot
}

// Delete removes acknowledged events by id. Unknown ids are ignored.
func (s *Spool) Delete(ids []string) {
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := s.events[:0]
	for _, se := range s.events {
		if _, gone := drop[se.ID]; !gone {
			kept = append(kept, se)
		}
	}
	if len(kept) == len(s.events) {
		return
	}
	s.events = kept
	s.persist()
}

// IncrementRetry bumps the delivery attempt counter for one event and drops
// the event permanently once the counter passes maxRetries.
func (s *Spool) IncrementRetry(id string, maxRetries int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID != id {
			continue
		}
		s.events[i].RetryCount++
		if s.events[i].RetryCount > maxRetries {
			s.log.Warn("event exceeded retry budget, dropping",
				zap.String("id", id),
				zap.String("event_type", string(s.events[i].Event.Type)),
				zap.Int("retries", s.events[i].RetryCount))
			s.events = append(s.events[:i], s.events[i+1:]...)
		}
		s.persist()
		return
	}
}

// Cleanup drops events older than the retention window.
func (s *Spool) Cleanup(retention time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clk.Now().Add(-retention).UnixMilli()
	kept := s.events[:0]
	for _, se := range s.events {
		if se.CreatedAt >= cutoff {
			kept = append(kept, se)
		}
	}
	if removed := len(s.events) - len(kept); removed > 0 {
		s.events = kept
		s.log.Info("expired events removed from spool", zap.Int("removed", removed))
		s.persist()
	}
}

// Len reports how many events are waiting.
func (s *Spool) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *Spool) load() {
	data, err := s.store.Get(spoolKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("offline spool unreadable, starting empty", zap.Error(err))
		}
		return
	}

	var events []event.StoredEvent
	if err := json.Unmarshal(data, &events); err != nil {
		s.log.Warn("offline spool corrupt, discarding persisted events", zap.Error(err))
		return
	}
	s.events = events
}

// persist mirrors the whole collection; the caller holds the lock. A failed
// write keeps the in-memory state and the previous on-disk state intact.
func (s *Spool) persist() {
	data, err := json.Marshal(s.events)
	if err != nil {
		s.log.Error("offline spool marshal failed", zap.Error(err))
		return
	}
	if err := s.store.Set(spoolKey, data); err != nil {
		s.log.Warn("offline spool write failed, events held in memory only", zap.Error(err))
	}
}
