package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsroomkit/beacon-go/pkg/storage"
)

const sessionTimeout = 30 * time.Minute

func newManager(t *testing.T, secure storage.SecureStore) (*Manager, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	return NewManager(secure, clk, sessionTimeout, zap.NewNop()), clk
}

func TestUserIDIsStableAndPersisted(t *testing.T) {
	secure := storage.NewMemorySecure()
	m, _ := newManager(t, secure)

	first := m.UserID()
	require.NotEmpty(t, first)
	assert.Equal(t, first, m.UserID())

	persisted, err := secure.Get("user_id")
	require.NoError(t, err)
	assert.Equal(t, first, persisted)

	// A second manager over the same store resolves the same install.
	again, _ := newManager(t, secure)
	assert.Equal(t, first, again.UserID())
}

type failingSecure struct{ getErr, setErr error }

func (f *failingSecure) Get(string) (string, error) { return "", f.getErr }
func (f *failingSecure) Set(string, string) error   { return f.setErr }
func (f *failingSecure) Delete(string) error        { return nil }

func TestUserIDSurvivesBrokenStore(t *testing.T) {
	m, _ := newManager(t, &failingSecure{
		getErr: errors.New("keychain locked"),
		setErr: errors.New("keychain locked"),
	})

	id := m.UserID()
	require.NotEmpty(t, id)
	assert.Equal(t, id, m.UserID())
}

func TestSessionStableWhileActive(t *testing.T) {
	m, clk := newManager(t, storage.NewMemorySecure())

	m.RecordActivity()
	first := m.SessionID()
	require.NotEmpty(t, first)

	clk.Add(29 * time.Minute)
	m.RecordActivity()
	assert.Equal(t, first, m.SessionID())

	// Repeated activity keeps extending the window.
	clk.Add(29 * time.Minute)
	m.RecordActivity()
	assert.Equal(t, first, m.SessionID())
}

func TestSessionRotatesAfterIdleTimeout(t *testing.T) {
	m, clk := newManager(t, storage.NewMemorySecure())

	m.RecordActivity()
	first := m.SessionID()

	// One millisecond past the timeout is enough to rotate.
	clk.Add(sessionTimeout + time.Millisecond)
	m.RecordActivity()
	second := m.SessionID()

	assert.NotEqual(t, first, second)
}

func TestSessionKeptAtExactTimeout(t *testing.T) {
	m, clk := newManager(t, storage.NewMemorySecure())

	m.RecordActivity()
	first := m.SessionID()

	clk.Add(sessionTimeout)
	m.RecordActivity()
	assert.Equal(t, first, m.SessionID())
}

func TestSessionRotatesOnReadAfterIdle(t *testing.T) {
	m, clk := newManager(t, storage.NewMemorySecure())

	first := m.SessionID()
	clk.Add(sessionTimeout + time.Second)

	assert.NotEqual(t, first, m.SessionID())
}

func TestForceNewSession(t *testing.T) {
	m, _ := newManager(t, storage.NewMemorySecure())

	first := m.SessionID()
	m.ForceNewSession()
	second := m.SessionID()

	assert.NotEqual(t, first, second)
	assert.Equal(t, second, m.SessionID())
}

func TestUserIDStableAcrossSessionRotation(t *testing.T) {
	m, clk := newManager(t, storage.NewMemorySecure())

	user := m.UserID()
	session := m.SessionID()

	clk.Add(sessionTimeout + time.Minute)
	m.RecordActivity()

	assert.NotEqual(t, session, m.SessionID())
	assert.Equal(t, user, m.UserID())
}
