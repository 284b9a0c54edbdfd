// Package identity owns the install-scoped user id and the rolling session id.
package identity

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsroomkit/beacon-go/pkg/storage"
)

const userIDKey = "user_id"

// Manager hands out the two ids every event carries. The user id survives
// reinstalls as long as the secure store does; the session id rotates after
// an idle gap longer than the configured timeout.
type Manager struct {
	secure  storage.SecureStore
	clk     clock.Clock
	timeout time.Duration
	log     *zap.Logger

	mu         sync.Mutex
	userID     string
	sessionID  string
	lastActive time.Time
}

func NewManager(secure storage.SecureStore, clk clock.Clock, sessionTimeout time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		secure:  secure,
		clk:     clk,
		timeout: sessionTimeout,
		log:     log,
	}
}

// UserID returns the durable install id, minting and persisting one on first
// use. A store that cannot be read is treated as empty; a store that cannot
// be written costs nothing but durability, the id stays valid in memory.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userID != "" {
		return m.userID
	}

	stored, err := m.secure.Get(userIDKey)
	if err == nil && stored != "" {
		m.userID = stored
		return m.userID
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.log.Warn("user id read failed, minting a new one", zap.Error(err))
	}

	m.userID = uuid.NewString()
	if err := m.secure.Set(userIDKey, m.userID); err != nil {
		m.log.Warn("user id persist failed, id is memory-only", zap.Error(err))
	}
	return m.userID
}

// SessionID returns the current session id, starting a session if none is
// active or the previous one has idled out.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireIfIdle()
	if m.sessionID == "" {
		m.startSession()
	}
	return m.sessionID
}

// RecordActivity marks the session alive at the current instant. When the
// gap since the previous activity already exceeds the timeout, the old
// session is retired first so the event being composed lands in a fresh one.
func (m *Manager) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireIfIdle()
	m.lastActive = m.clk.Now()
}

// ForceNewSession unconditionally starts a fresh session.
func (m *Manager) ForceNewSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startSession()
}

func (m *Manager) expireIfIdle() {
	if m.sessionID == "" {
		return
	}
	if m.clk.Now().Sub(m.lastActive) > m.timeout {
		m.sessionID = ""
	}
}

func (m *Manager) startSession() {
	m.sessionID = uuid.NewString()
	m.lastActive = m.clk.Now()
}
