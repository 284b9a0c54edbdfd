package offline

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsroomkit/beacon-go/pkg/event"
	"github.com/newsroomkit/beacon-go/pkg/storage"
)

func newSpool(maxEvents int) (*Spool, storage.Store, *clock.Mock) {
	store := storage.NewMemory()
	clk := clock.NewMock()
	return NewSpool(store, clk, maxEvents, zap.NewNop()), store, clk
}

func pageEvent(url string) event.Event {
	return event.Event{
		SiteID:    "news-site",
		SessionID: "s1",
		UserID:    "u1",
		Type:      event.TypeScreenView,
		PageURL:   url,
		Timestamp: event.At(time.Date(2026, 3, 14, 9, 30, 0, 250_000_000, time.UTC)),
	}
}

func urls(events []event.StoredEvent) []string {
	out := make([]string, 0, len(events))
	for _, se := range events {
		out = append(out, se.Event.PageURL)
	}
	return out
}

func TestStoreAssignsIDAndTimestamp(t *testing.T) {
	s, _, clk := newSpool(10)
	clk.Set(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	s.Store(pageEvent("/home"))

	pending := s.FetchPending()
	require.Len(t, pending, 1)
	assert.NotEmpty(t, pending[0].ID)
	assert.Equal(t, clk.Now().UnixMilli(), pending[0].CreatedAt)
	assert.Equal(t, 0, pending[0].RetryCount)
}

func TestEvictsOldestWhenFull(t *testing.T) {
	s, _, _ := newSpool(3)

	s.Store(pageEvent("/one"))
	s.Store(pageEvent("/two"))
	s.Store(pageEvent("/three"))
	s.Store(pageEvent("/four"))

	assert.Equal(t, []string{"/two", "/three", "/four"}, urls(s.FetchPending()))
}

func TestFetchPendingIsASnapshot(t *testing.T) {
	s, _, _ := newSpool(10)
	s.Store(pageEvent("/one"))

	snapshot := s.FetchPending()
	s.Store(pageEvent("/two"))

	assert.Len(t, snapshot, 1)
	assert.Len(t, s.FetchPending(), 2)
}

func TestDeleteRemovesByID(t *testing.T) {
	s, _, _ := newSpool(10)
	s.Store(pageEvent("/one"))
	s.Store(pageEvent("/two"))
	s.Store(pageEvent("/three"))

	pending := s.FetchPending()
	s.Delete([]string{pending[0].ID, pending[2].ID, "no-such-id"})

	assert.Equal(t, []string{"/two"}, urls(s.FetchPending()))
}

func TestRetryBudgetDropsEvent(t *testing.T) {
	const maxRetries = 2
	s, _, _ := newSpool(10)
	s.Store(pageEvent("/flaky"))
	id := s.FetchPending()[0].ID

	s.IncrementRetry(id, maxRetries)
	require.Equal(t, 1, s.FetchPending()[0].RetryCount)

	s.IncrementRetry(id, maxRetries)
	require.Equal(t, 2, s.FetchPending()[0].RetryCount)

	// The third failed delivery pushes the counter past the budget.
	s.IncrementRetry(id, maxRetries)
	assert.Empty(t, s.FetchPending())
}

func TestIncrementRetryUnknownID(t *testing.T) {
	s, _, _ := newSpool(10)
	s.Store(pageEvent("/one"))

	s.IncrementRetry("no-such-id", 3)

	pending := s.FetchPending()
	require.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].RetryCount)
}

func TestCleanupDropsExpired(t *testing.T) {
	s, _, clk := newSpool(10)

	s.Store(pageEvent("/old"))
	clk.Add(48 * time.Hour)
	s.Store(pageEvent("/fresh"))

	s.Cleanup(24 * time.Hour)

	assert.Equal(t, []string{"/fresh"}, urls(s.FetchPending()))
}

func TestReloadPreservesEventsExactly(t *testing.T) {
	store := storage.NewMemory()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	first := NewSpool(store, clk, 10, zap.NewNop())
	ev := pageEvent("/article/42")
	ev.ScrollDepth = intPtr(85)
	ev.CustomData = map[string]any{"experiment": "b"}
	first.Store(ev)
	id := first.FetchPending()[0].ID
	first.IncrementRetry(id, 5)

	second := NewSpool(store, clk, 10, zap.NewNop())
	pending := second.FetchPending()
	require.Len(t, pending, 1)

	got := pending[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, clk.Now().UnixMilli(), got.CreatedAt)
	assert.Equal(t, "/article/42", got.Event.PageURL)
	require.NotNil(t, got.Event.ScrollDepth)
	assert.Equal(t, 85, *got.Event.ScrollDepth)
	assert.Equal(t, "b", got.Event.CustomData["experiment"])
	// Millisecond precision survives the disk round trip.
	assert.True(t, ev.Timestamp.Equal(got.Event.Timestamp.Time))
}

func TestCorruptSpoolDiscarded(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.Set("offline_events", []byte("{not json")))

	s := NewSpool(store, clock.NewMock(), 10, zap.NewNop())
	assert.Equal(t, 0, s.Len())

	// The spool is usable immediately and the next write replaces the
	// corrupt state.
	s.Store(pageEvent("/after"))
	assert.Equal(t, 1, s.Len())

	data, err := store.Get("offline_events")
	require.NoError(t, err)
	var events []event.StoredEvent
	require.NoError(t, json.Unmarshal(data, &events))
	require.Len(t, events, 1)
}

type readOnlyStore struct {
	storage.Store
	setErr error
}

func (r *readOnlyStore) Set(string, []byte) error { return r.setErr }

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	s := NewSpool(&readOnlyStore{
		Store:  storage.NewMemory(),
		setErr: errors.New("disk full"),
	}, clock.NewMock(), 10, zap.NewNop())

	s.Store(pageEvent("/one"))
	s.Store(pageEvent("/two"))

	assert.Equal(t, 2, s.Len())
}

func intPtr(v int) *int { return &v }
