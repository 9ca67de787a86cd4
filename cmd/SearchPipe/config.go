package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/SearchPipe/internal/messaging"
	"github.com/BTreeMap/SearchPipe/internal/search"
	"github.com/BTreeMap/SearchPipe/internal/store"
	"github.com/BTreeMap/SearchPipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SearchPipe state data
	DefaultStateDir = "/var/lib/searchpipe"
	// DefaultDBFileName is the default SQLite session database filename
	DefaultDBFileName = "searchpipe.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device store filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSessionTTL is how long an idle conversation is kept
	DefaultSessionTTL = 24 * time.Hour
	// DefaultAzureIndex is the job postings index the default workflow queries
	DefaultAzureIndex = "nycjobs"
	// MemoryDSN selects the in-memory session store
	MemoryDSN = "memory"
)

// Transport names accepted by -transport.
const (
	TransportNone     = "none"
	TransportWhatsApp = messaging.ChannelWhatsApp
	TransportTwilio   = messaging.ChannelTwilio
)

// Config holds the resolved process configuration.
type Config struct {
	StateDir        string
	DatabaseURL     string
	SessionTTL      time.Duration
	APIAddr         string
	Transport       string
	WhatsAppDSN     string
	QROutput        string
	NumericCode     bool
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
	AzureService    string
	AzureKey        string
	AzureIndex      string
	CorpusFile      string
	WorkflowConfig  string
	ResultFields    string
	NATSURL         string
	DispatchWorkers int
	LogLevel        string
}

// loadEnvironmentConfig loads .env and reads the environment defaults.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:        util.GetEnv("SEARCHPIPE_STATE_DIR", DefaultStateDir),
		DatabaseURL:     util.GetEnv("DATABASE_URL", os.Getenv("REDIS_URL")),
		SessionTTL:      util.ParseDurationEnv("SESSION_TTL", DefaultSessionTTL),
		APIAddr:         os.Getenv("API_ADDR"),
		Transport:       strings.ToLower(util.GetEnv("TRANSPORT", TransportNone)),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		NumericCode:     util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_FROM_NUMBER"),
		AzureService:    os.Getenv("AZURE_SEARCH_SERVICE"),
		AzureKey:        os.Getenv("AZURE_SEARCH_KEY"),
		AzureIndex:      util.GetEnv("AZURE_SEARCH_INDEX", DefaultAzureIndex),
		CorpusFile:      os.Getenv("CORPUS_FILE"),
		WorkflowConfig:  os.Getenv("WORKFLOW_CONFIG"),
		ResultFields:    os.Getenv("RESULT_FIELDS"),
		NATSURL:         os.Getenv("NATS_URL"),
		DispatchWorkers: util.ParseIntEnv("DISPATCH_WORKERS", messaging.DefaultDispatchWorkers),
		LogLevel:        util.GetEnv("LOG_LEVEL", "info"),
	}

	slog.Debug("environment variables loaded",
		"SEARCHPIPE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SESSION_TTL", config.SessionTTL,
		"TRANSPORT", config.Transport,
		"AZURE_SEARCH_SERVICE_SET", config.AzureService != "",
		"CORPUS_FILE", config.CorpusFile,
		"NATS_URL_SET", config.NATSURL != "")
	return config
}

// parseCommandLineFlags applies args on top of the environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, config Config, args []string) (Config, error) {
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for SearchPipe data (overrides $SEARCHPIPE_STATE_DIR)")
	fs.StringVar(&config.DatabaseURL, "db-dsn", config.DatabaseURL, `session store DSN: postgres://, redis://, a SQLite path, or "memory" (overrides $DATABASE_URL / $REDIS_URL)`)
	fs.DurationVar(&config.SessionTTL, "session-ttl", config.SessionTTL, "evict conversations idle for this long, 0 to keep (overrides $SESSION_TTL)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&config.Transport, "transport", config.Transport, "chat transport: whatsapp, twilio or none (overrides $TRANSPORT)")
	fs.StringVar(&config.WhatsAppDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&config.QROutput, "qr-output", config.QROutput, "path to write login QR code")
	fs.BoolVar(&config.NumericCode, "numeric-code", config.NumericCode, "use numeric login code instead of QR code")
	fs.StringVar(&config.AzureService, "azure-service", config.AzureService, "Azure Cognitive Search service name (overrides $AZURE_SEARCH_SERVICE)")
	fs.StringVar(&config.AzureIndex, "azure-index", config.AzureIndex, "Azure Cognitive Search index (overrides $AZURE_SEARCH_INDEX)")
	fs.StringVar(&config.CorpusFile, "corpus-file", config.CorpusFile, "JSON document corpus used when Azure is not configured (overrides $CORPUS_FILE)")
	fs.StringVar(&config.WorkflowConfig, "workflow-config", config.WorkflowConfig, "YAML workflow configuration (overrides $WORKFLOW_CONFIG)")
	fs.StringVar(&config.ResultFields, "result-fields", config.ResultFields, "key,title[,description] document fields for result items; unset uses the job posting layout (overrides $RESULT_FIELDS)")
	fs.StringVar(&config.NATSURL, "nats-url", config.NATSURL, "NATS server for selection events (overrides $NATS_URL)")
	fs.IntVar(&config.DispatchWorkers, "dispatch-workers", config.DispatchWorkers, "inbound workers per transport (overrides $DISPATCH_WORKERS)")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "debug, info, warn or error (overrides $LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		return config, err
	}
	config.Transport = strings.ToLower(strings.TrimSpace(config.Transport))

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No session store DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	if err := config.validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c Config) validate() error {
	switch c.Transport {
	case TransportNone, TransportWhatsApp, TransportTwilio:
	default:
		return fmt.Errorf("unknown transport %q (want whatsapp, twilio or none)", c.Transport)
	}
	if c.AzureService == "" && c.CorpusFile == "" {
		return fmt.Errorf("no search backend: set AZURE_SEARCH_SERVICE or CORPUS_FILE")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session TTL must not be negative")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.resultMapper(); err != nil {
		return err
	}
	return nil
}

// jobTextFields are matched against keywords when serving job postings from a local corpus.
var jobTextFields = []string{"business_title", "agency", "job_description"}

// corpusTextFields returns the document fields keyword terms are matched against.
func (c Config) corpusTextFields() []string {
	if strings.TrimSpace(c.ResultFields) == "" {
		return jobTextFields
	}
	var fields []string
	for i, f := range strings.Split(c.ResultFields, ",") {
		if f = strings.TrimSpace(f); i > 0 && f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// resultMapper builds the document mapper from ResultFields.
func (c Config) resultMapper() (search.Mapper, error) {
	if strings.TrimSpace(c.ResultFields) == "" {
		return search.JobToSearchHit, nil
	}
	fields := strings.Split(c.ResultFields, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 2 || len(fields) > 3 || fields[0] == "" || fields[1] == "" {
		return nil, fmt.Errorf("invalid result fields %q (want key,title[,description])", c.ResultFields)
	}
	description := ""
	if len(fields) == 3 {
		description = fields[2]
	}
	return search.FieldMapper(fields[0], fields[1], description), nil
}

// sessionStoreDSN maps the configured DSN to the argument of store.Open.
func (c Config) sessionStoreDSN() string {
	if strings.EqualFold(c.DatabaseURL, MemoryDSN) {
		return ""
	}
	return c.DatabaseURL
}

// usesLocalFiles reports whether the process writes SQLite files that need the state directory lock.
func (c Config) usesLocalFiles() bool {
	dsn := c.sessionStoreDSN()
	if dsn != "" && store.DetectDSNType(dsn) == store.DSNTypeSQLite {
		return true
	}
	return c.Transport == TransportWhatsApp && store.DetectDSNType(c.WhatsAppDSN) == store.DSNTypeSQLite
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
