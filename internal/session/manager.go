// Package session keeps per-conversation chat history in memory.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/shoel/internal/models"
	"go.uber.org/zap"
)

type chatSession struct {
	mu         sync.Mutex // serializes turns of one conversation
	history    []models.Turn
	lastActive time.Time
	inUse      int
}

// Manager stores chat sessions keyed by id. Sessions are created lazily and
// evicted by an external scheduler calling EvictStale.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*chatSession
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets a logger for session events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*chatSession),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the session for id and a copy of its history. An empty
// or unknown id starts a new session; the returned id is the one in use.
func (m *Manager) GetOrCreate(id string) (string, []models.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(&id)
	return id, append([]models.Turn(nil), s.history...)
}

func (m *Manager) getOrCreateLocked(id *string) *chatSession {
	if s, ok := m.sessions[*id]; ok && *id != "" {
		s.lastActive = m.now()
		return s
	}
	if *id == "" {
		*id = uuid.New().String()
	}
	s := &chatSession{lastActive: m.now()}
	m.sessions[*id] = s
	if m.logger != nil {
		m.logger.Debug("session created", zap.String("session_id", *id))
	}
	return s
}

// Lock serializes work on one session and returns the id in use together
// with the unlock function. A locked session is never evicted.
func (m *Manager) Lock(id string) (string, func()) {
	m.mu.Lock()
	s := m.getOrCreateLocked(&id)
	s.inUse++
	m.mu.Unlock()

	s.mu.Lock()
	return id, func() {
		s.mu.Unlock()
		m.mu.Lock()
		s.inUse--
		s.lastActive = m.now()
		m.mu.Unlock()
	}
}

// Append adds turns to the session id, creating it if needed. Turns with a
// zero timestamp are stamped with the current time.
func (m *Manager) Append(id string, turns ...models.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(&id)
	for _, t := range turns {
		if t.At.IsZero() {
			t.At = m.now()
		}
		s.history = append(s.history, t)
	}
}

// History returns a copy of the session's turns, or nil for an unknown id.
func (m *Manager) History(id string) []models.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return append([]models.Turn(nil), s.history...)
}

// EvictStale removes sessions inactive for at least ttl as of now and reports
// how many were removed. Sessions currently locked are kept.
func (m *Manager) EvictStale(now time.Time, ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.inUse > 0 || now.Sub(s.lastActive) < ttl {
			continue
		}
		delete(m.sessions, id)
		n++
	}
	if n > 0 && m.logger != nil {
		m.logger.Debug("sessions evicted", zap.Int("count", n), zap.Int("remaining", len(m.sessions)))
	}
	return n
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
