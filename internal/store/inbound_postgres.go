package store

import (
	"context"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements Backend.
var _ Backend = (*PostgresStore)(nil)

// ClaimInbound inserts the claim, or takes over a stale unfinished one.
func (s *PostgresStore) ClaimInbound(ctx context.Context, messageID, conversationID string) (bool, error) {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, conversation_id, claimed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO UPDATE SET conversation_id = EXCLUDED.conversation_id, claimed_at = EXCLUDED.claimed_at
		 WHERE inbound_dedup.completed_at IS NULL AND inbound_dedup.claimed_at <= $4`,
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

func (s *PostgresStore) CompleteInbound(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET completed_at = $1 WHERE message_id = $2`, time.Now(), messageID,
	); err != nil {
		return fmt.Errorf("complete inbound %s failed: %w", messageID, err)
	}
	return nil
}

func (s *PostgresStore) ReleaseInbound(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM inbound_dedup WHERE message_id = $1 AND completed_at IS NULL`, messageID,
	); err != nil {
		return fmt.Errorf("release inbound %s failed: %w", messageID, err)
	}
	return nil
}

// purgeInbound removes records claimed before the cutoff, completed or not.
func (s *PostgresStore) purgeInbound(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE claimed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge inbound failed: %w", err)
	}
	return result.RowsAffected()
}
