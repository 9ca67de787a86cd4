package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// Constants for service channel configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for receipt and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines how long an emit waits on a full channel before dropping
	DefaultChannelTimeout = 1 * time.Second
)

// eventChannels owns the receipt and response channels of a service. Emits and
// close are serialized so a stopped service never sends on a closed channel.
type eventChannels struct {
	name      string
	mu        sync.RWMutex
	stopped   bool
	receipts  chan models.Receipt
	responses chan models.Response
}

func newEventChannels(name string) *eventChannels {
	return &eventChannels{
		name:      name,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (c *eventChannels) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// close closes both channels once.
func (c *eventChannels) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.receipts)
	close(c.responses)
	slog.Info(c.name+" stopped and channels closed")
}

func (c *eventChannels) emitReceipt(receipt models.Receipt) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return false
	}
	select {
	case c.receipts <- receipt:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+" receipts channel blocked, dropping receipt", "to", receipt.To, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (c *eventChannels) emitResponse(response models.Response) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		slog.Warn(c.name+" dropping inbound message (service stopped)", "from", response.From)
		return false
	}
	select {
	case c.responses <- response:
		slog.Debug(c.name+" emitted inbound message", "from", response.From, "messageID", response.MessageID)
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+" responses channel blocked, dropping message", "from", response.From, "timeout", DefaultChannelTimeout)
		return false
	}
}
