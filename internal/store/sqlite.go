// Package store provides storage backends for SearchPipe.
//
// This file implements an SQLite-backed store for session state.
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

	"github.com/BTreeMap/SearchPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// SaveSession stores or replaces the session for state.ConversationID.
func (s *SQLiteStore) SaveSession(ctx context.Context, state models.SessionState) error {
	data, err := encodeSession(state)
	if err != nil {
		slog.Error("SQLiteStore SaveSession encode failed", "error", err, "conversationID", state.ConversationID)
		return err
	}

	query := `
		INSERT OR REPLACE INTO sessions (conversation_id, step_id, step_index, state_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, state.ConversationID, state.StepID, state.StepIndex,
		string(data), state.CreatedAt.UTC(), state.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save session %s: %w", state.ConversationID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "conversationID", state.ConversationID, "step", state.StepID)
	return nil
}

// GetSession retrieves the session for conversationID, or nil if none exists.
func (s *SQLiteStore) GetSession(ctx context.Context, conversationID string) (*models.SessionState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state_data FROM sessions WHERE conversation_id = ?`, conversationID).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load session %s: %w", conversationID, err)
	}
	return decodeSession(conversationID, []byte(data))
}

// DeleteSession removes the session for conversationID.
func (s *SQLiteStore) DeleteSession(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE conversation_id = ?`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete session %s: %w", conversationID, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "conversationID", conversationID)
	return nil
}

// PurgeSessions deletes sessions last updated before the given time.
func (s *SQLiteStore) PurgeSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, before.UTC())
	if err != nil {
		slog.Error("SQLiteStore PurgeSessions failed", "error", err)
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected check failed: %w", err)
	}
	// The dedup table has no native expiry either
	if dropped, err := s.purgeInbound(ctx, time.Now().Add(-DefaultDedupTTL)); err != nil {
		slog.Warn("SQLiteStore PurgeSessions inbound purge failed", "error", err)
	} else if dropped > 0 {
		slog.Debug("SQLiteStore PurgeSessions dropped inbound records", "count", dropped)
	}
	return n, nil
}

// setRawSession writes state_data verbatim. Used by tests to simulate corruption.
func (s *SQLiteStore) setRawSession(conversationID, data string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO sessions (conversation_id, step_id, step_index, state_data, created_at, updated_at)
		VALUES (?, '', 0, ?, ?, ?)`, conversationID, data, now, now)
	return err
}
