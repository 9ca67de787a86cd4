// Package api runs the SearchPipe HTTP server and supervises the chat transports.
//
// The HTTP surface lets any client drive a conversation directly (POST /messages),
// inspect or cancel it (/conversations/{id}), and exposes the Twilio webhook, a
// health check and Prometheus metrics. Run also starts every registered transport,
// its inbound dispatcher and the session janitor, and stops them on shutdown.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/messaging"
	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Server defaults.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 30 * time.Second
	// DefaultJanitorInterval caps how often expired sessions are purged.
	DefaultJanitorInterval = 10 * time.Minute
	// MaxMessageBytes bounds a POST /messages body.
	MaxMessageBytes = 64 << 10
)

// Conversations is the workflow surface the server drives.
type Conversations interface {
	HandleMessage(ctx context.Context, conversationID, text string) ([]models.Outbound, error)
	Reset(ctx context.Context, conversationID string) error
	State(ctx context.Context, conversationID string) (*models.SessionState, error)
}

// transport pairs a messaging service with the handler consuming its inbound messages.
type transport struct {
	service messaging.Service
	handler *messaging.ResponseHandler
}

// Opts holds configuration options for the Server.
type Opts struct {
	Addr       string
	Workers    int
	Transports []transport
	Purger     store.Purger
	SessionTTL time.Duration
}

// Option defines a functional option for configuring the Server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithDispatchWorkers sets the number of inbound workers per transport.
func WithDispatchWorkers(n int) Option {
	return func(o *Opts) {
		o.Workers = n
	}
}

// WithTransport registers a messaging service and the handler for its inbound
// messages. A *messaging.TwilioService also gets its webhook mounted.
func WithTransport(svc messaging.Service, handler *messaging.ResponseHandler) Option {
	return func(o *Opts) {
		o.Transports = append(o.Transports, transport{service: svc, handler: handler})
	}
}

// WithSessionJanitor purges sessions idle for longer than ttl.
func WithSessionJanitor(p store.Purger, ttl time.Duration) Option {
	return func(o *Opts) {
		o.Purger = p
		o.SessionTTL = ttl
	}
}

// Server is the SearchPipe HTTP server.
type Server struct {
	conversations Conversations
	opts          Opts
	mux           *http.ServeMux
	server        *http.Server
}

// NewServer creates a Server around conversations.
func NewServer(conversations Conversations, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, Workers: messaging.DefaultDispatchWorkers}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		conversations: conversations,
		opts:          o,
		mux:           http.NewServeMux(),
	}
	s.registerHandlers()
	s.server = &http.Server{
		Addr:              o.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	slog.Debug("NewServer created", "addr", o.Addr, "transports", len(o.Transports), "janitor", o.Purger != nil && o.SessionTTL > 0)
	return s
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("POST /messages", s.messageHandler)
	s.mux.HandleFunc("GET /conversations/{id}", s.getConversationHandler)
	s.mux.HandleFunc("DELETE /conversations/{id}", s.deleteConversationHandler)
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	for _, t := range s.opts.Transports {
		if tw, ok := t.service.(*messaging.TwilioService); ok {
			s.mux.HandleFunc("POST /twilio/webhook", tw.TwilioWebhookHandler)
		}
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the transports, their dispatchers, the janitor and the HTTP server,
// and blocks until ctx is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := s.startTransports(gctx); err != nil {
		return err
	}
	for _, t := range s.opts.Transports {
		g.Go(func() error { return t.handler.Run(gctx, s.opts.Workers) })
		g.Go(func() error {
			drainReceipts(gctx, t.service.Receipts())
			return nil
		})
	}

	if s.opts.Purger != nil && s.opts.SessionTTL > 0 {
		g.Go(func() error {
			runJanitor(gctx, s.opts.Purger, s.opts.SessionTTL)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		err := s.server.Shutdown(shutdownCtx)
		for _, t := range s.opts.Transports {
			if stopErr := t.service.Stop(); stopErr != nil {
				slog.Error("Server failed to stop transport", "error", stopErr)
			}
		}
		if err != nil {
			slog.Error("Server shutdown error", "error", err)
			return err
		}
		slog.Info("Server shutdown complete")
		return nil
	})

	g.Go(func() error {
		slog.Info("SearchPipe API listening", "addr", s.opts.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server listen error", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}

// startTransports starts every transport in order. When one fails, the ones
// already started are stopped again before the error is returned.
func (s *Server) startTransports(ctx context.Context) error {
	for i, t := range s.opts.Transports {
		if err := t.service.Start(ctx); err != nil {
			for _, started := range s.opts.Transports[:i] {
				if stopErr := started.service.Stop(); stopErr != nil {
					slog.Error("Server failed to stop transport", "error", stopErr, "channel", started.handler.Channel())
				}
			}
			return fmt.Errorf("failed to start %s transport: %w", t.handler.Channel(), err)
		}
	}
	return nil
}

// drainReceipts logs delivery receipts until the channel closes.
func drainReceipts(ctx context.Context, receipts <-chan models.Receipt) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-receipts:
			if !ok {
				return
			}
			if r.Status == models.MessageStatusFailed {
				slog.Warn("Delivery failed", "to", r.To)
			} else {
				slog.Debug("Delivery receipt", "to", r.To, "status", r.Status)
			}
		}
	}
}

// janitorInterval returns how often to purge for a given ttl.
func janitorInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/2, time.Second), DefaultJanitorInterval)
}

// runJanitor deletes sessions not updated within ttl until ctx is cancelled.
func runJanitor(ctx context.Context, p store.Purger, ttl time.Duration) {
	ticker := time.NewTicker(janitorInterval(ttl))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeExpired(ctx, p, ttl, time.Now())
		}
	}
}

func purgeExpired(ctx context.Context, p store.Purger, ttl time.Duration, now time.Time) {
	n, err := p.PurgeSessions(ctx, now.Add(-ttl))
	if err != nil {
		slog.Error("Janitor purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Janitor purged idle sessions", "count", n)
	}
}
