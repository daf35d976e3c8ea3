// Package store provides session storage backends for the Salom engine.
//
// Every backend implements the same versioned compare-and-set contract:
// writers read a session together with its version and write back with that
// version as the expected one. A stale write is rejected with
// ErrSessionConflict instead of being applied, so concurrent instances never
// silently overwrite each other's dialogue transitions. Sessions expire after
// a TTL; an expired session reads as not found.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salom/internal/models"
)

// DefaultSessionTTL bounds how long an abandoned conversation is kept.
const DefaultSessionTTL = 30 * time.Minute

// ErrSessionNotFound is returned by Get when no live session exists for the
// user. Callers start from a fresh session with version 0.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionConflict is returned by CompareAndSet when the stored version no
// longer matches the expected one. Callers retry the read-modify-write.
var ErrSessionConflict = errors.New("session version conflict")

// SessionStore is the capability the engine persists dialogue state through.
type SessionStore interface {
	// Get returns the session and its current version. ErrSessionNotFound
	// means no live session exists; version 0 is the expected version for
	// the first write.
	Get(ctx context.Context, userID string) (models.Session, int64, error)
	// CompareAndSet writes the session if the stored version still equals
	// expectedVersion (0 for a new session) and returns the new version.
	CompareAndSet(ctx context.Context, session models.Session, expectedVersion int64) (int64, error)
	// Delete removes the session unconditionally.
	Delete(ctx context.Context, userID string) error
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
	TTL time.Duration
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithDSN sets the backend connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithTTL sets the session time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

func applyOptions(opts []Option) Opts {
	cfg := Opts{TTL: DefaultSessionTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	return cfg
}

// encodeSession serializes a session for storage.
func encodeSession(s models.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session for %s: %w", s.UserID, err)
	}
	return data, nil
}

// decodeSession deserializes a stored session.
func decodeSession(data []byte) (models.Session, error) {
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode stored session: %w", err)
	}
	if s.Slots == nil {
		s.Slots = make(map[string]string)
	}
	return s, nil
}
