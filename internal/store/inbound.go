package store

import (
	"context"
	"time"
)

const (
	// DefaultDedupTTL bounds how long handled inbound message IDs are remembered.
	DefaultDedupTTL = 24 * time.Hour
	// DefaultClaimTimeout is how long an unfinished claim blocks redeliveries. A turn
	// that crashed without completing or releasing its claim is retried after this.
	DefaultClaimTimeout = 5 * time.Minute
)

// InboundRecord tracks one inbound transport message through its turn.
type InboundRecord struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	ClaimedAt      time.Time  `json:"claimed_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// claimable reports whether a new delivery may take over rec at now.
func (rec InboundRecord) claimable(now time.Time) bool {
	return rec.CompletedAt == nil && now.Sub(rec.ClaimedAt) >= DefaultClaimTimeout
}

// InboundLedger deduplicates transport redeliveries. A message is claimed before
// its turn runs, then completed when the turn succeeded or released when it failed,
// so a redelivery after a failure is processed again.
type InboundLedger interface {
	// ClaimInbound returns true when the caller should process the message: it was
	// never seen, or an earlier claim was released or went stale.
	ClaimInbound(ctx context.Context, messageID, conversationID string) (bool, error)
	// CompleteInbound marks the message handled; later deliveries are duplicates.
	CompleteInbound(ctx context.Context, messageID string) error
	// ReleaseInbound drops an unfinished claim. Completed messages are left alone.
	ReleaseInbound(ctx context.Context, messageID string) error
}
