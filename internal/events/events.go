// Package events publishes workflow lifecycle events to other services.
package events

import (
	"context"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// SubjectSelectionConfirmed is the subject completed selections are published on.
const SubjectSelectionConfirmed = "searchpipe.selection.confirmed"

// SelectionConfirmed is emitted when a conversation finishes the workflow.
type SelectionConfirmed struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Query          models.Query       `json:"query"`
	Selection      []models.SearchHit `json:"selection"`
	CompletedAt    time.Time          `json:"completed_at"`
}

// Publisher delivers events. Publish failures never affect the conversation.
type Publisher interface {
	PublishSelectionConfirmed(ctx context.Context, evt SelectionConfirmed) error
	Close() error
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) PublishSelectionConfirmed(ctx context.Context, evt SelectionConfirmed) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
