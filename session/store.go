package session

import (
	"context"
	"sync"
	"time"

	"github.com/korjavin/medcasebot/logger"
)

// Store keeps the active session of each user
type Store interface {
	// Get returns nil without error when the user has no session
	Get(ctx context.Context, userID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}

// MemoryStore keeps sessions for the lifetime of the process
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID].clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s.clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// Len returns the number of stored sessions
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap drops sessions that have not been touched for ttl and returns how many were removed
func (m *MemoryStore) Reap(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunReaper reaps abandoned sessions every interval until ctx is done
func (m *MemoryStore) RunReaper(ctx context.Context, interval, ttl time.Duration, log *logger.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Reap(ttl); n > 0 {
				log.Info("Reaped idle sessions", "count", n, "ttl", ttl.String())
			}
		}
	}
}
