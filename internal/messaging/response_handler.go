package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SearchPipe/internal/metrics"
	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/store"
)

// DefaultErrorMessage is sent when a turn fails before producing replies.
const DefaultErrorMessage = "⚠️ We encountered an issue processing your message. Please try again in a moment."

// Inbound dispositions recorded in metrics.
const (
	dispositionHandled   = "handled"
	dispositionDuplicate = "duplicate"
	dispositionInvalid   = "invalid"
	dispositionFailed    = "failed"
)

// ConversationHandler runs one workflow turn for a conversation.
type ConversationHandler interface {
	HandleMessage(ctx context.Context, conversationID, text string) ([]models.Outbound, error)
}

// HandlerOpts holds optional settings for a ResponseHandler.
type HandlerOpts struct {
	Dedup        store.InboundLedger
	ErrorMessage string
}

// HandlerOption defines a functional option for configuring a ResponseHandler.
type HandlerOption func(*HandlerOpts)

// WithDedup drops redelivered inbound messages using ledger. A message whose turn
// failed is released again, so a redelivery of it is retried.
func WithDedup(ledger store.InboundLedger) HandlerOption {
	return func(o *HandlerOpts) {
		o.Dedup = ledger
	}
}

// WithErrorMessage overrides the apology sent when a turn fails.
func WithErrorMessage(msg string) HandlerOption {
	return func(o *HandlerOpts) {
		o.ErrorMessage = msg
	}
}

// ResponseHandler routes inbound messages of one messaging service into the
// workflow and sends the replies back to the sender.
type ResponseHandler struct {
	channel       string
	msgService    Service
	conversations ConversationHandler
	dedup         store.InboundLedger
	errorMessage  string
}

// NewResponseHandler creates a ResponseHandler for msgService. channel namespaces the
// conversation IDs so that the same number on two transports is two conversations.
func NewResponseHandler(channel string, msgService Service, conversations ConversationHandler, opts ...HandlerOption) *ResponseHandler {
	o := HandlerOpts{ErrorMessage: DefaultErrorMessage}
	for _, opt := range opts {
		opt(&o)
	}
	return &ResponseHandler{
		channel:       channel,
		msgService:    msgService,
		conversations: conversations,
		dedup:         o.Dedup,
		errorMessage:  o.ErrorMessage,
	}
}

// Channel returns the channel name the handler namespaces conversations with.
func (rh *ResponseHandler) Channel() string {
	return rh.channel
}

// ConversationID returns the workflow conversation ID of a canonical sender.
func (rh *ResponseHandler) ConversationID(canonicalFrom string) string {
	return rh.channel + ":" + canonicalFrom
}

// ProcessResponse runs one workflow turn for an inbound message and sends the replies.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		rh.count(dispositionInvalid)
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	conversationID := rh.ConversationID(canonicalFrom)

	claimed := false
	if rh.dedup != nil && response.MessageID != "" {
		fresh, err := rh.dedup.ClaimInbound(ctx, response.MessageID, conversationID)
		if err != nil {
			slog.Warn("ResponseHandler dedup claim failed, processing anyway", "error", err, "messageID", response.MessageID)
		} else if !fresh {
			rh.count(dispositionDuplicate)
			slog.Info("ResponseHandler duplicate message ignored", "conversationID", conversationID, "messageID", response.MessageID)
			return nil
		}
		claimed = fresh
	}

	slog.Debug("ResponseHandler processing response", "conversationID", conversationID, "body_length", len(response.Body))
	replies, err := rh.conversations.HandleMessage(ctx, conversationID, response.Body)
	if err != nil {
		rh.count(dispositionFailed)
		slog.Error("ResponseHandler turn failed", "error", err, "conversationID", conversationID)
		if claimed {
			if relErr := rh.dedup.ReleaseInbound(ctx, response.MessageID); relErr != nil {
				slog.Warn("ResponseHandler failed to release claim", "error", relErr, "messageID", response.MessageID)
			}
		}
		if sendErr := rh.msgService.SendMessage(ctx, canonicalFrom, rh.errorMessage); sendErr != nil {
			slog.Error("ResponseHandler failed to send error message", "error", sendErr, "to", canonicalFrom)
		}
		return fmt.Errorf("conversation turn failed: %w", err)
	}

	// The turn's state is committed, so a failed send must not run it again.
	if claimed {
		if err := rh.dedup.CompleteInbound(ctx, response.MessageID); err != nil {
			slog.Warn("ResponseHandler failed to complete claim", "error", err, "messageID", response.MessageID)
		}
	}

	for _, msg := range RenderAll(replies) {
		if err := rh.msgService.SendMessage(ctx, canonicalFrom, msg); err != nil {
			rh.count(dispositionFailed)
			slog.Error("ResponseHandler failed to send reply", "error", err, "to", canonicalFrom)
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}
	rh.count(dispositionHandled)
	slog.Info("ResponseHandler response handled", "conversationID", conversationID, "replies", len(replies))
	return nil
}

func (rh *ResponseHandler) count(disposition string) {
	metrics.InboundMessagesTotal.WithLabelValues(rh.channel, disposition).Inc()
}

// Run consumes the service's inbound messages with the given number of workers until
// the channel closes or ctx is cancelled. Messages of one sender stay in order.
func (rh *ResponseHandler) Run(ctx context.Context, workers int) error {
	slog.Info("ResponseHandler starting response processing", "channel", rh.channel, "workers", workers)
	d := NewDispatcher(workers, func(r models.Response) string {
		if c, err := rh.msgService.ValidateAndCanonicalizeRecipient(r.From); err == nil {
			return rh.ConversationID(c)
		}
		return r.From
	}, rh.ProcessResponse)
	err := d.Run(ctx, rh.msgService.Responses())
	slog.Info("ResponseHandler stopped response processing", "channel", rh.channel)
	return err
}
