package store

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

func encodeSession(state models.SessionState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", state.ConversationID, err)
	}
	return data, nil
}

func decodeSession(conversationID string, data []byte) (*models.SessionState, error) {
	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("session %s: %w: %v", conversationID, models.ErrCorruptState, err)
	}
	if state.ConversationID != "" && state.ConversationID != conversationID {
		return nil, fmt.Errorf("session %s holds state for %s: %w", conversationID, state.ConversationID, models.ErrCorruptState)
	}
	state.ConversationID = conversationID
	return &state, nil
}
