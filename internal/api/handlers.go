package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/google/uuid"
)

// MessageRequest is the body of POST /messages.
type MessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
}

// MessageResult is the result of POST /messages.
type MessageResult struct {
	ConversationID string            `json:"conversation_id"`
	Replies        []models.Outbound `json:"replies"`
	Messages       []string          `json:"messages"`
}

// messageHandler runs one turn (POST /messages). A missing conversation ID starts a
// new conversation under a fresh UUID.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	slog.Debug("Server.messageHandler: processing message", "path", r.URL.Path)

	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxMessageBytes)).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
		slog.Debug("Server.messageHandler: minted conversation ID", "conversationID", req.ConversationID)
	}

	replies, err := s.conversations.HandleMessage(r.Context(), req.ConversationID, req.Text)
	if err != nil {
		slog.Error("Server.messageHandler: turn failed", "error", err, "conversationID", req.ConversationID)
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	slog.Info("Server.messageHandler: turn handled", "conversationID", req.ConversationID, "replies", len(replies))
	writeTurn(w, req.ConversationID, replies)
}

// getConversationHandler returns the stored state (GET /conversations/{id}).
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.conversations.State(r.Context(), id)
	if err != nil {
		slog.Error("Server.getConversationHandler: failed to load state", "error", err, "conversationID", id)
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}
	writeState(w, state)
}

// deleteConversationHandler cancels a conversation (DELETE /conversations/{id}).
func (s *Server) deleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.conversations.Reset(r.Context(), id); err != nil {
		slog.Error("Server.deleteConversationHandler: reset failed", "error", err, "conversationID", id)
		writeError(w, http.StatusInternalServerError, "Failed to reset conversation")
		return
	}
	slog.Info("Server.deleteConversationHandler: conversation reset", "conversationID", id)
	writeEnvelope(w, http.StatusOK, models.SuccessWithMessage("Conversation reset", nil))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	channels := make([]string, 0, len(s.opts.Transports))
	for _, t := range s.opts.Transports {
		channels = append(channels, t.handler.Channel())
	}
	writeHealth(w, channels)
}
