// Package store provides storage backends for SearchPipe.
//
// This file implements a Redis-backed store for session state.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix namespaces every key written by RedisStore.
	DefaultKeyPrefix = "searchpipe:"
	// DefaultRedisPingTimeout bounds the connectivity check at startup.
	DefaultRedisPingTimeout = 5 * time.Second
)

// RedisStore keeps sessions as JSON values with optional expiry, so several
// SearchPipe processes can share conversation state.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to the Redis URL given by WithRedisURL.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisStore invoked", "DSN_set", cfg.DSN != "", "sessionTTL", cfg.SessionTTL)
	if cfg.DSN == "" {
		slog.Error("RedisStore URL not set")
		return nil, fmt.Errorf("redis URL not set")
	}

	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRedisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err)
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return newRedisStoreWithClient(rdb, cfg), nil
}

func newRedisStoreWithClient(rdb *redis.Client, cfg Opts) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: cfg.SessionTTL}
}

func (s *RedisStore) sessionKey(conversationID string) string {
	return s.prefix + "session:" + conversationID
}

func (s *RedisStore) dedupKey(messageID string) string {
	return s.prefix + "dedup:" + messageID
}

// GetSession returns the stored session, or nil on a cache miss.
func (s *RedisStore) GetSession(ctx context.Context, conversationID string) (*models.SessionState, error) {
	data, err := s.rdb.Get(ctx, s.sessionKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetSession failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load session %s: %w", conversationID, err)
	}
	return decodeSession(conversationID, data)
}

// SaveSession writes the session, resetting its expiry when a TTL is configured.
func (s *RedisStore) SaveSession(ctx context.Context, state models.SessionState) error {
	data, err := encodeSession(state)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.sessionKey(state.ConversationID), data, s.ttl).Err(); err != nil {
		slog.Error("RedisStore SaveSession failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save session %s: %w", state.ConversationID, err)
	}
	slog.Debug("RedisStore SaveSession succeeded", "conversationID", state.ConversationID, "step", state.StepID)
	return nil
}

// DeleteSession removes the session.
func (s *RedisStore) DeleteSession(ctx context.Context, conversationID string) error {
	if err := s.rdb.Del(ctx, s.sessionKey(conversationID)).Err(); err != nil {
		slog.Error("RedisStore DeleteSession failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete session %s: %w", conversationID, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Compile-time check that RedisStore implements Backend.
var _ Backend = (*RedisStore)(nil)

const redisInboundCompleted = "completed"

// releaseClaim deletes the key unless the message was completed.
var releaseClaim = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and v ~= ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// ClaimInbound sets the claim with DefaultClaimTimeout, so stale claims expire on their own.
func (s *RedisStore) ClaimInbound(ctx context.Context, messageID, conversationID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.dedupKey(messageID), "claimed:"+conversationID, DefaultClaimTimeout).Result()
	if err != nil {
		return false, fmt.Errorf("claim inbound %s failed: %w", messageID, err)
	}
	return ok, nil
}

// CompleteInbound remembers the message for DefaultDedupTTL.
func (s *RedisStore) CompleteInbound(ctx context.Context, messageID string) error {
	if err := s.rdb.Set(ctx, s.dedupKey(messageID), redisInboundCompleted, DefaultDedupTTL).Err(); err != nil {
		return fmt.Errorf("complete inbound %s failed: %w", messageID, err)
	}
	return nil
}

func (s *RedisStore) ReleaseInbound(ctx context.Context, messageID string) error {
	if err := releaseClaim.Run(ctx, s.rdb, []string{s.dedupKey(messageID)}, redisInboundCompleted).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release inbound %s failed: %w", messageID, err)
	}
	return nil
}
