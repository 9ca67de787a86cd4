// Command SearchPipe runs the guided search chatbot: an HTTP API plus an optional
// WhatsApp or Twilio transport, backed by Azure Cognitive Search or a local corpus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BTreeMap/SearchPipe/internal/api"
	"github.com/BTreeMap/SearchPipe/internal/events"
	"github.com/BTreeMap/SearchPipe/internal/flow"
	"github.com/BTreeMap/SearchPipe/internal/lockfile"
	"github.com/BTreeMap/SearchPipe/internal/messaging"
	"github.com/BTreeMap/SearchPipe/internal/search"
	"github.com/BTreeMap/SearchPipe/internal/store"
	"github.com/BTreeMap/SearchPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/SearchPipe/internal/whatsapp"
)

func main() {
	initializeLogger(slog.LevelInfo)

	config, err := parseCommandLineFlags(flag.CommandLine, loadEnvironmentConfig(), os.Args[1:])
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}
	level, _ := parseLogLevel(config.LogLevel)
	initializeLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping SearchPipe", "transport", config.Transport, "state_dir", config.StateDir)
	if err := run(ctx, config); err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			fmt.Fprintln(os.Stderr, lockErr.Error())
		}
		slog.Error("SearchPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SearchPipe exited successfully")
}

// initializeLogger sets up structured logging at level
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// run wires every component from config and serves until ctx is cancelled.
func run(ctx context.Context, config Config) error {
	if config.usesLocalFiles() {
		lock, err := lockfile.AcquireLock(config.StateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	backend, err := store.Open(config.sessionStoreDSN(), buildStoreOptions(config)...)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer backend.Close()

	provider, err := buildProvider(config)
	if err != nil {
		return err
	}

	workflow, err := buildWorkflowConfig(config)
	if err != nil {
		return err
	}

	publisher, err := buildPublisher(config)
	if err != nil {
		return err
	}
	defer publisher.Close()

	mapper, err := config.resultMapper()
	if err != nil {
		return err
	}

	orchestrator, err := flow.NewOrchestrator(workflow, provider, mapper, backend, flow.WithPublisher(publisher))
	if err != nil {
		return fmt.Errorf("failed to build workflow: %w", err)
	}

	apiOpts, err := buildAPIOptions(ctx, config, orchestrator, backend)
	if err != nil {
		return err
	}
	return api.NewServer(orchestrator, apiOpts...).Run(ctx)
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(config Config) []store.Option {
	opts := []store.Option{store.WithKeyPrefix("searchpipe")}
	if config.SessionTTL > 0 {
		opts = append(opts, store.WithSessionTTL(config.SessionTTL))
	}
	return opts
}

// buildProvider selects Azure Cognitive Search when configured, else the local corpus.
func buildProvider(config Config) (search.Provider, error) {
	if config.AzureService != "" {
		client, err := search.NewAzureClient(config.AzureService, config.AzureKey, config.AzureIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to configure Azure search: %w", err)
		}
		slog.Info("Search provider configured", "provider", "azure", "index", config.AzureIndex)
		return client, nil
	}
	corpus, err := search.LoadCorpusFile(config.CorpusFile, config.corpusTextFields()...)
	if err != nil {
		return nil, err
	}
	slog.Info("Search provider configured", "provider", "corpus", "documents", corpus.Len())
	return corpus, nil
}

func buildWorkflowConfig(config Config) (flow.Config, error) {
	if config.WorkflowConfig == "" {
		return flow.DefaultConfig(), nil
	}
	cfg, err := flow.LoadConfig(config.WorkflowConfig)
	if err != nil {
		return flow.Config{}, err
	}
	slog.Info("Workflow configuration loaded", "path", config.WorkflowConfig, "facets", len(cfg.Facets))
	return cfg, nil
}

func buildPublisher(config Config) (events.Publisher, error) {
	if config.NATSURL == "" {
		return events.NoopPublisher{}, nil
	}
	p, err := events.NewNATSPublisher(config.NATSURL)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// buildAPIOptions constructs API server options, connecting the chat transport if one is selected.
func buildAPIOptions(ctx context.Context, config Config, conversations messaging.ConversationHandler, backend store.Backend) ([]api.Option, error) {
	var opts []api.Option
	if config.APIAddr != "" {
		opts = append(opts, api.WithAddr(config.APIAddr))
	}
	opts = append(opts, api.WithDispatchWorkers(config.DispatchWorkers))
	if p, ok := backend.(store.Purger); ok && config.SessionTTL > 0 {
		opts = append(opts, api.WithSessionJanitor(p, config.SessionTTL))
	}

	svc, err := buildMessagingService(ctx, config)
	if err != nil {
		return nil, err
	}
	if svc != nil {
		handler := messaging.NewResponseHandler(config.Transport, svc, conversations, messaging.WithDedup(backend))
		opts = append(opts, api.WithTransport(svc, handler))
	}
	return opts, nil
}

// buildMessagingService returns nil when no transport is configured.
func buildMessagingService(ctx context.Context, config Config) (messaging.Service, error) {
	switch config.Transport {
	case TransportWhatsApp:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDSN)}
		if config.QROutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(config.QROutput))
		}
		if config.NumericCode {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect WhatsApp: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(config.TwilioSID),
			twiliowhatsapp.WithAuthToken(config.TwilioToken),
			twiliowhatsapp.WithFromWhats(config.TwilioFrom),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure Twilio: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	default:
		return nil, nil
	}
}
