package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"salom/internal/models"
)

// Connection pool settings for the Postgres backend.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions in PostgreSQL, for multi-instance
// deployments where the version check is the only write coordination.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresStore creates a PostgreSQL session store from a connection DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db, ttl: cfg.TTL}, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (models.Session, int64, error) {
	var data []byte
	var version int64
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT state, version, updated_at FROM sessions WHERE user_id = $1`, userID,
	).Scan(&data, &version, &updatedAt)
	if err == sql.ErrNoRows {
		return models.Session{}, 0, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore Get failed", "error", err, "userID", userID)
		return models.Session{}, 0, fmt.Errorf("failed to query session for %s: %w", userID, err)
	}

	if time.Since(updatedAt) > s.ttl {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1 AND version = $2`, userID, version); err != nil {
			slog.Error("PostgresStore expired session cleanup failed", "error", err, "userID", userID)
		}
		return models.Session{}, 0, ErrSessionNotFound
	}

	session, err := decodeSession(data)
	if err != nil {
		return models.Session{}, 0, err
	}
	return session, version, nil
}

func (s *PostgresStore) CompareAndSet(ctx context.Context, session models.Session, expectedVersion int64) (int64, error) {
	data, err := encodeSession(session)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	next := expectedVersion + 1

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO sessions (user_id, state, version, updated_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id) DO NOTHING`,
			session.UserID, data, next, now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE sessions SET state = $1, version = $2, updated_at = $3 WHERE user_id = $4 AND version = $5`,
			data, next, now, session.UserID, expectedVersion)
	}
	if err != nil {
		slog.Error("PostgresStore CompareAndSet failed", "error", err, "userID", session.UserID)
		return 0, fmt.Errorf("failed to write session for %s: %w", session.UserID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		slog.Debug("PostgresStore CompareAndSet conflict", "userID", session.UserID, "expected", expectedVersion)
		return 0, ErrSessionConflict
	}
	return next, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// Close closes the Postgres connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
