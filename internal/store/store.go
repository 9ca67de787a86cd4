// Package store provides storage backends for SearchPipe.
//
// Every backend persists per-conversation session state and records inbound message IDs
// for deduplication. Backends are selected from a DSN: empty for the in-memory store,
// postgres:// for PostgreSQL, redis:// for Redis, and anything else is an SQLite file path.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// DSN types returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite3"
	DSNTypeRedis    = "redis"
)

// SessionStore persists workflow state keyed by conversation ID.
type SessionStore interface {
	// GetSession returns the stored state, or nil when none exists.
	// Undecodable state yields an error wrapping models.ErrCorruptState.
	GetSession(ctx context.Context, conversationID string) (*models.SessionState, error)
	// SaveSession creates or overwrites the state for state.ConversationID.
	SaveSession(ctx context.Context, state models.SessionState) error
	// DeleteSession removes the state. Deleting an absent session is not an error.
	DeleteSession(ctx context.Context, conversationID string) error
	Close() error
}

// Purger is implemented by backends without native expiry. It removes sessions
// whose last update is older than before and reports how many were removed.
type Purger interface {
	PurgeSessions(ctx context.Context, before time.Time) (int64, error)
}

// Backend is a session store that also deduplicates inbound messages.
type Backend interface {
	SessionStore
	InboundLedger
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN        string        // database connection string or file path
	SessionTTL time.Duration // eviction TTL for stored sessions; zero keeps them until deleted
	KeyPrefix  string        // key namespace for key-value backends
}

// Option defines a functional option for configuring stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithRedisURL sets the Redis connection URL.
func WithRedisURL(url string) Option {
	return func(o *Opts) {
		o.DSN = url
	}
}

// WithSessionTTL sets how long an untouched session is kept before eviction.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.SessionTTL = ttl
	}
}

// WithKeyPrefix sets the key namespace used by key-value backends.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) {
		o.KeyPrefix = prefix
	}
}

// DetectDSNType returns the backend type for a DSN.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DSNTypePostgres
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return DSNTypePostgres
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return DSNTypeRedis
	default:
		return DSNTypeSQLite
	}
}

// Open creates the backend selected by dsn. An empty dsn selects the in-memory store.
func Open(dsn string, opts ...Option) (Backend, error) {
	if dsn == "" {
		slog.Info("Store.Open using in-memory session store")
		return NewInMemoryStore(opts...), nil
	}

	dsnType := DetectDSNType(dsn)
	slog.Info("Store.Open selecting backend", "type", dsnType)
	switch dsnType {
	case DSNTypePostgres:
		return NewPostgresStore(append(opts, WithPostgresDSN(dsn))...)
	case DSNTypeRedis:
		return NewRedisStore(append(opts, WithRedisURL(dsn))...)
	case DSNTypeSQLite:
		return NewSQLiteStore(append(opts, WithSQLiteDSN(dsn))...)
	default:
		return nil, fmt.Errorf("unsupported DSN type %q", dsnType)
	}
}
