package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/messaging"
	"github.com/BTreeMap/SearchPipe/internal/models"
)

// ConversationHeader carries the conversation ID of a turn, so clients that
// started a conversation without one can read it without parsing the body.
const ConversationHeader = "X-Conversation-ID"

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status     string   `json:"status"`
	Timestamp  string   `json:"timestamp"`
	Transports []string `json:"transports"`
}

// internalErrorBody is written when an envelope cannot be encoded.
var internalErrorBody = []byte(`{"status":"error","message":"Internal server error"}` + "\n")

// writeTurn writes the outcome of one turn, rendered the way a transport would send it.
func writeTurn(w http.ResponseWriter, conversationID string, replies []models.Outbound) {
	w.Header().Set(ConversationHeader, conversationID)
	writeEnvelope(w, http.StatusOK, models.Success(MessageResult{
		ConversationID: conversationID,
		Replies:        replies,
		Messages:       messaging.RenderAll(replies),
	}))
}

// writeState writes a stored conversation, or 404 when there is none.
func writeState(w http.ResponseWriter, state *models.SessionState) {
	if state == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	w.Header().Set(ConversationHeader, state.ConversationID)
	writeEnvelope(w, http.StatusOK, models.Success(state))
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeEnvelope(w, statusCode, models.Error(message))
}

func writeHealth(w http.ResponseWriter, channels []string) {
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Transports: channels,
	})
}

func writeEnvelope(w http.ResponseWriter, statusCode int, resp models.APIResponse) {
	writeJSON(w, statusCode, resp)
}

// writeJSON encodes body before touching the headers, so an encoding failure
// still yields a well-formed 500 envelope.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		slog.Error("Server writeJSON encode failed", "error", err, "status", statusCode)
		w.Header().Del(ConversationHeader)
		buf.Reset()
		buf.Write(internalErrorBody)
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Server writeJSON write failed", "error", err)
	}
}
