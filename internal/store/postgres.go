// Package store provides storage backends for SearchPipe.
//
// This file implements a PostgreSQL-backed store for session state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/SearchPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
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

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

// SaveSession stores or updates the session for state.ConversationID.
func (s *PostgresStore) SaveSession(ctx context.Context, state models.SessionState) error {
	data, err := encodeSession(state)
	if err != nil {
		slog.Error("PostgresStore SaveSession encode failed", "error", err, "conversationID", state.ConversationID)
		return err
	}

	query := `
		INSERT INTO sessions (conversation_id, step_id, step_index, state_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id)
		DO UPDATE SET step_id = EXCLUDED.step_id, step_index = EXCLUDED.step_index,
			state_data = EXCLUDED.state_data, updated_at = EXCLUDED.updated_at`
	_, err = s.db.ExecContext(ctx, query, state.ConversationID, state.StepID, state.StepIndex,
		string(data), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save session %s: %w", state.ConversationID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "conversationID", state.ConversationID, "step", state.StepID)
	return nil
}

// GetSession retrieves the session for conversationID, or nil if none exists.
func (s *PostgresStore) GetSession(ctx context.Context, conversationID string) (*models.SessionState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT state_data FROM sessions WHERE conversation_id = $1`, conversationID).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load session %s: %w", conversationID, err)
	}
	return decodeSession(conversationID, data)
}

// DeleteSession removes the session for conversationID.
func (s *PostgresStore) DeleteSession(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE conversation_id = $1`, conversationID)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete session %s: %w", conversationID, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "conversationID", conversationID)
	return nil
}

// PurgeSessions deletes sessions last updated before the given time.
func (s *PostgresStore) PurgeSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < $1`, before)
	if err != nil {
		slog.Error("PostgresStore PurgeSessions failed", "error", err)
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected check failed: %w", err)
	}
	// The dedup table has no native expiry either
	if dropped, err := s.purgeInbound(ctx, time.Now().Add(-DefaultDedupTTL)); err != nil {
		slog.Warn("PostgresStore PurgeSessions inbound purge failed", "error", err)
	} else if dropped > 0 {
		slog.Debug("PostgresStore PurgeSessions dropped inbound records", "count", dropped)
	}
	return n, nil
}
