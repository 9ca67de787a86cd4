package store

import (
	"context"
	"fmt"
	"time"
)

// Compile-time check that SQLiteStore implements Backend.
var _ Backend = (*SQLiteStore)(nil)

// ClaimInbound inserts the claim, or takes over a stale unfinished one.
func (s *SQLiteStore) ClaimInbound(ctx context.Context, messageID, conversationID string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, conversation_id, claimed_at) VALUES (?, ?, ?)
		 ON CONFLICT (message_id) DO UPDATE SET conversation_id = excluded.conversation_id, claimed_at = excluded.claimed_at
		 WHERE inbound_dedup.completed_at IS NULL AND inbound_dedup.claimed_at <= ?`,
		messageID, conversationID, now, now.Add(-DefaultClaimTimeout),
	)
	if err != nil {
		return false, fmt.Errorf("claim inbound %s failed: %w", messageID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim inbound %s rows affected: %w", messageID, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CompleteInbound(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET completed_at = ? WHERE message_id = ?`,
		time.Now().UTC(), messageID,
	); err != nil {
		return fmt.Errorf("complete inbound %s failed: %w", messageID, err)
	}
	return nil
}

func (s *SQLiteStore) ReleaseInbound(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM inbound_dedup WHERE message_id = ? AND completed_at IS NULL`, messageID,
	); err != nil {
		return fmt.Errorf("release inbound %s failed: %w", messageID, err)
	}
	return nil
}

// purgeInbound removes records claimed before the cutoff, completed or not.
func (s *SQLiteStore) purgeInbound(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE claimed_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge inbound failed: %w", err)
	}
	return result.RowsAffected()
}
