// Package session tracks live workspace sessions and fans orchestrator
// events out to connected dashboard clients.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pharmaverse/dashboard/internal/domain"
)

// ErrNotFound indicates an unknown or expired session.
var ErrNotFound = errors.New("session not found")

// ErrRunInProgress indicates a run was requested for a session that
// already has one in flight. Overlapping runs are rejected rather than
// queued or cancelled; the dashboard re-triggers after the current run.
var ErrRunInProgress = errors.New("run in progress")

// Manager owns the live session registry. Sessions are in-memory with a
// sliding TTL; only report archive records survive a restart.
type Manager struct {
	sessions *cache.Cache
	runLocks sync.Map // session ID -> *sync.Mutex
}

// NewManager creates a manager whose sessions expire after ttl of
// inactivity.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: cache.New(ttl, 10*time.Minute),
	}
}

// Create registers a new session for the case.
func (m *Manager) Create(c domain.CaseDescriptor) *domain.Session {
	sess := domain.NewSession(uuid.NewString(), c)
	m.sessions.SetDefault(sess.ID, sess)
	return sess
}

// Get returns a live session and refreshes its TTL.
func (m *Manager) Get(id string) (*domain.Session, error) {
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	sess := v.(*domain.Session)
	m.sessions.SetDefault(id, sess)
	return sess, nil
}

// BeginRun acquires the session's run slot. It fails immediately with
// ErrRunInProgress when a run is already in flight; the returned release
// must be called when the run finishes.
func (m *Manager) BeginRun(id string) (release func(), err error) {
	lock, _ := m.runLocks.LoadOrStore(id, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, ErrRunInProgress
	}
	return func() {
		mu.Unlock()
		m.runLocks.Delete(id)
	}, nil
}
