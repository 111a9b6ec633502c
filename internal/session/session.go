// Package session keeps per-user agent state: the conversation history and
// whether the agent has asked for a human.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/handover-bot/internal/domain"
)

// Session is the agent-side state of one user conversation.
type Session struct {
	UserID   int64         `json:"user_id"`
	Handover bool          `json:"handover"`
	History  []domain.Turn `json:"history"`
	Updated  time.Time     `json:"updated"`
}

// Append adds a turn and keeps at most max turns (unbounded when max <= 0).
func (s *Session) Append(turn domain.Turn, max int) {
	s.History = append(s.History, turn)
	if max > 0 && len(s.History) > max {
		s.History = append([]domain.Turn(nil), s.History[len(s.History)-max:]...)
	}
}

// Store persists sessions. Get returns a fresh session when none exists.
type Store interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Reset(ctx context.Context, userID int64) error
}

// MemoryStore keeps sessions in process memory with a sliding TTL.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]Session
}

// NewMemoryStore builds a MemoryStore. A zero ttl never expires sessions.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: make(map[int64]Session)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok || m.expired(s) {
		delete(m.sessions, userID)
		return &Session{UserID: userID}, nil
	}
	s.History = append([]domain.Turn(nil), s.History...)
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.History = append([]domain.Turn(nil), s.History...)
	cp.Updated = m.now()
	m.sessions[s.UserID] = cp
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) expired(s Session) bool {
	return m.ttl > 0 && m.now().Sub(s.Updated) > m.ttl
}
