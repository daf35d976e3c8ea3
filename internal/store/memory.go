package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"salom/internal/models"
)

// InMemoryStore keeps sessions in process memory. Suitable for tests and
// single-instance deployments; sessions do not survive a restart.
type InMemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	now      func() time.Time // replaceable in tests
}

type memoryEntry struct {
	session   models.Session
	version   int64
	expiresAt time.Time
}

// NewInMemoryStore creates an in-memory session store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := applyOptions(opts)
	return &InMemoryStore{
		ttl:      cfg.TTL,
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (s *InMemoryStore) Get(ctx context.Context, userID string) (models.Session, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(userID)
	if !ok {
		return models.Session{}, 0, ErrSessionNotFound
	}
	return entry.session, entry.version, nil
}

func (s *InMemoryStore) CompareAndSet(ctx context.Context, session models.Session, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if entry, ok := s.live(session.UserID); ok {
		current = entry.version
	}
	if current != expectedVersion {
		slog.Debug("InMemoryStore CompareAndSet conflict", "userID", session.UserID, "expected", expectedVersion, "current", current)
		return 0, ErrSessionConflict
	}

	next := expectedVersion + 1
	s.sessions[session.UserID] = memoryEntry{
		session:   session,
		version:   next,
		expiresAt: s.now().Add(s.ttl),
	}
	return next, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

// live returns the entry for userID, dropping it when expired. Callers hold
// the mutex.
func (s *InMemoryStore) live(userID string) (memoryEntry, bool) {
	entry, ok := s.sessions[userID]
	if !ok {
		return memoryEntry{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.sessions, userID)
		return memoryEntry{}, false
	}
	return entry, true
}
