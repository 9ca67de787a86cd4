package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/store"
)

// StoreBasedStateManager implements StateManager using a SessionStore backend.
type StoreBasedStateManager struct {
	store store.SessionStore
}

// NewStoreBasedStateManager creates a new StateManager backed by a SessionStore.
func NewStoreBasedStateManager(st store.SessionStore) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// LoadState retrieves the state for a conversation.
func (sm *StoreBasedStateManager) LoadState(ctx context.Context, conversationID string) (*models.SessionState, error) {
	state, err := sm.store.GetSession(ctx, conversationID)
	if err != nil {
		slog.Error("StateManager LoadState error", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load state for %s: %w", conversationID, err)
	}
	if state == nil {
		slog.Debug("StateManager LoadState not found", "conversationID", conversationID)
		return nil, nil
	}
	slog.Debug("StateManager LoadState found", "conversationID", conversationID, "step", state.StepID)
	return state, nil
}

// SaveState persists state.
func (sm *StoreBasedStateManager) SaveState(ctx context.Context, state models.SessionState) error {
	if err := sm.store.SaveSession(ctx, state); err != nil {
		slog.Error("StateManager SaveState error", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save state for %s: %w", state.ConversationID, err)
	}
	slog.Debug("StateManager SaveState succeeded", "conversationID", state.ConversationID, "step", state.StepID)
	return nil
}

// ResetState removes all state for a conversation.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, conversationID string) error {
	if err := sm.store.DeleteSession(ctx, conversationID); err != nil {
		slog.Error("StateManager ResetState error", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to reset state for %s: %w", conversationID, err)
	}
	slog.Debug("StateManager ResetState succeeded", "conversationID", conversationID)
	return nil
}
