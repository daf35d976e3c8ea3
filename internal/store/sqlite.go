package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"salom/internal/models"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions in a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore creates a SQLite session store. The DSN is a file path to
// the database; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, ttl: cfg.TTL}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (models.Session, int64, error) {
	var data string
	var version int64
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT state, version, updated_at FROM sessions WHERE user_id = ?`, userID,
	).Scan(&data, &version, &updatedAt)
	if err == sql.ErrNoRows {
		return models.Session{}, 0, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore Get failed", "error", err, "userID", userID)
		return models.Session{}, 0, fmt.Errorf("failed to query session for %s: %w", userID, err)
	}

	if time.Since(updatedAt) > s.ttl {
		// Expired rows read as absent; the delete frees version 0 for reuse.
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ? AND version = ?`, userID, version); err != nil {
			slog.Error("SQLiteStore expired session cleanup failed", "error", err, "userID", userID)
		}
		return models.Session{}, 0, ErrSessionNotFound
	}

	session, err := decodeSession([]byte(data))
	if err != nil {
		return models.Session{}, 0, err
	}
	return session, version, nil
}

func (s *SQLiteStore) CompareAndSet(ctx context.Context, session models.Session, expectedVersion int64) (int64, error) {
	data, err := encodeSession(session)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	next := expectedVersion + 1

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO sessions (user_id, state, version, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(user_id) DO NOTHING`,
			session.UserID, string(data), next, now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE sessions SET state = ?, version = ?, updated_at = ? WHERE user_id = ? AND version = ?`,
			string(data), next, now, session.UserID, expectedVersion)
	}
	if err != nil {
		slog.Error("SQLiteStore CompareAndSet failed", "error", err, "userID", session.UserID)
		return 0, fmt.Errorf("failed to write session for %s: %w", session.UserID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		slog.Debug("SQLiteStore CompareAndSet conflict", "userID", session.UserID, "expected", expectedVersion)
		return 0, ErrSessionConflict
	}
	return next, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
