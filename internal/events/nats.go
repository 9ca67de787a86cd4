package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultFlushTimeout bounds how long a publish waits for the server to acknowledge.
const DefaultFlushTimeout = 5 * time.Second

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("searchpipe"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATSPublisher connected", "url", nc.ConnectedUrlRedacted())
	return NewNATSPublisherWithConn(nc), nil
}

// NewNATSPublisherWithConn wraps an existing connection.
func NewNATSPublisherWithConn(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// PublishSelectionConfirmed publishes evt as JSON. The event ID is sent as Nats-Msg-Id
// so JetStream consumers can drop redeliveries.
func (p *NATSPublisher) PublishSelectionConfirmed(ctx context.Context, evt SelectionConfirmed) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	msg := nats.NewMsg(SubjectSelectionConfirmed)
	msg.Data = data
	if evt.ID != "" {
		msg.Header.Set(nats.MsgIdHdr, evt.ID)
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", SubjectSelectionConfirmed, err)
	}
	flushCtx, cancel := context.WithTimeout(ctx, DefaultFlushTimeout)
	defer cancel()
	if err := p.nc.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("failed to flush event to subject %s: %w", SubjectSelectionConfirmed, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
