package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/patrickmn/go-cache"
)

const (
	// DefaultCleanupInterval is how often expired in-memory entries are swept.
	DefaultCleanupInterval = 10 * time.Minute
)

// InMemoryStore is a volatile store for sessions and dedup records, intended for
// development and single-process deployments.
type InMemoryStore struct {
	sessions *cache.Cache

	inboundMu sync.Mutex
	inbound   *cache.Cache
}

// NewInMemoryStore creates an in-memory store. WithSessionTTL enables expiry of idle sessions.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	ttl := cache.NoExpiration
	if cfg.SessionTTL > 0 {
		ttl = cfg.SessionTTL
	}
	slog.Debug("NewInMemoryStore invoked", "sessionTTL", cfg.SessionTTL)
	return &InMemoryStore{
		sessions: cache.New(ttl, DefaultCleanupInterval),
		inbound:  cache.New(DefaultDedupTTL, DefaultCleanupInterval),
	}
}

// GetSession returns a copy of the stored state or nil.
func (s *InMemoryStore) GetSession(ctx context.Context, conversationID string) (*models.SessionState, error) {
	v, ok := s.sessions.Get(conversationID)
	if !ok {
		return nil, nil
	}
	state := v.(models.SessionState).Clone()
	return &state, nil
}

// SaveSession stores a copy of state, refreshing its expiry.
func (s *InMemoryStore) SaveSession(ctx context.Context, state models.SessionState) error {
	s.sessions.SetDefault(state.ConversationID, state.Clone())
	return nil
}

// DeleteSession removes the state for conversationID.
func (s *InMemoryStore) DeleteSession(ctx context.Context, conversationID string) error {
	s.sessions.Delete(conversationID)
	return nil
}

// SessionCount returns the number of live sessions.
func (s *InMemoryStore) SessionCount() int {
	return s.sessions.ItemCount()
}

// PurgeSessions deletes sessions last updated before the cutoff.
func (s *InMemoryStore) PurgeSessions(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for id, item := range s.sessions.Items() {
		if state, ok := item.Object.(models.SessionState); ok && state.UpdatedAt.Before(before) {
			s.sessions.Delete(id)
			n++
		}
	}
	return n, nil
}

// Close flushes all entries.
func (s *InMemoryStore) Close() error {
	s.sessions.Flush()
	s.inbound.Flush()
	return nil
}

var (
	_ Backend = (*InMemoryStore)(nil)
	_ Purger  = (*InMemoryStore)(nil)
)

// ClaimInbound adds a claim, or takes over a stale unfinished one.
func (s *InMemoryStore) ClaimInbound(ctx context.Context, messageID, conversationID string) (bool, error) {
	s.inboundMu.Lock()
	defer s.inboundMu.Unlock()
	now := time.Now()
	if v, ok := s.inbound.Get(messageID); ok && !v.(InboundRecord).claimable(now) {
		return false, nil
	}
	s.inbound.Set(messageID, InboundRecord{MessageID: messageID, ConversationID: conversationID, ClaimedAt: now}, cache.DefaultExpiration)
	return true, nil
}

func (s *InMemoryStore) CompleteInbound(ctx context.Context, messageID string) error {
	s.inboundMu.Lock()
	defer s.inboundMu.Unlock()
	v, ok := s.inbound.Get(messageID)
	if !ok {
		return nil
	}
	rec := v.(InboundRecord)
	now := time.Now()
	rec.CompletedAt = &now
	s.inbound.Set(messageID, rec, cache.DefaultExpiration)
	return nil
}

func (s *InMemoryStore) ReleaseInbound(ctx context.Context, messageID string) error {
	s.inboundMu.Lock()
	defer s.inboundMu.Unlock()
	if v, ok := s.inbound.Get(messageID); ok && v.(InboundRecord).CompletedAt == nil {
		s.inbound.Delete(messageID)
	}
	return nil
}
