package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/api"
	"github.com/BTreeMap/IsItStolen/internal/store"
	"github.com/BTreeMap/IsItStolen/internal/twiliowhatsapp"
	"github.com/BTreeMap/IsItStolen/internal/util"
	"github.com/BTreeMap/IsItStolen/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for IsItStolen state data
	DefaultStateDir = "/var/lib/isitstolen"
	// DefaultAppDBFileName is the default SQLite database for reports and tickets
	DefaultAppDBFileName = "isitstolen.db"
	// DefaultWhatsAppDBFileName is the default SQLite database for the whatsmeow session
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultRedisURL is used when REDIS_URL is unset
	DefaultRedisURL = "redis://localhost:6379/0"
	// DefaultFlowsConfig is the flow definition file loaded at startup
	DefaultFlowsConfig = "config/flows.yaml"
)

// Messaging transports selectable with MESSAGING_TRANSPORT.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
	TransportNone     = "none"
)

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	initializeLogger(*flags.logLevel)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping IsItStolen", "transport", *flags.transport, "api_addr", *flags.apiAddr)
	if err := run(ctx, flags); err != nil {
		slog.Error("IsItStolen failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("IsItStolen exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	WhatsAppDBDSN    string
	RedisURL         string
	NATSURL          string
	FlowsConfig      string
	CategoryKeywords string
	UseConfigFlows   bool
	ContextTTL       time.Duration
	RateLimitMax     int
	RateLimitWindow  time.Duration
	Transport        string
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	APIAddr          string
	LogLevel         string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	dbDSN            *string
	whatsAppDSN      *string
	redisURL         *string
	natsURL          *string
	flowsConfig      *string
	categoryKeywords *string
	useConfigFlows   *bool
	contextTTL       *time.Duration
	rateLimitMax     *int
	rateLimitWindow  *time.Duration
	transport        *string
	apiAddr          *string
	logLevel         *string

	// Twilio credentials are read from the environment only.
	twilioSID   string
	twilioToken string
	twilioFrom  string
}

// initializeLogger sets up structured logging at the given level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         util.GetEnv("ISITSTOLEN_STATE_DIR", DefaultStateDir),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		NATSURL:          os.Getenv("NATS_URL"),
		FlowsConfig:      util.GetEnv("FLOWS_CONFIG", DefaultFlowsConfig),
		CategoryKeywords: os.Getenv("CATEGORY_KEYWORDS"),
		UseConfigFlows:   util.ParseBoolEnv("USE_CONFIG_FLOWS", false),
		ContextTTL:       util.ParseDurationEnv("CONTEXT_TTL", store.DefaultContextTTL),
		RateLimitMax:     util.ParseIntEnv("RATE_LIMIT_MAX", store.DefaultRateLimitMax),
		RateLimitWindow:  util.ParseDurationEnv("RATE_LIMIT_WINDOW", store.DefaultRateLimitWindow),
		Transport:        strings.ToLower(util.GetEnv("MESSAGING_TRANSPORT", TransportWhatsApp)),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		APIAddr:          util.GetEnv("API_ADDR", api.DefaultAddr),
		LogLevel:         util.GetEnv("LOG_LEVEL", "info"),
	}

	// An explicitly empty REDIS_URL selects the in-memory conversation store.
	if redisURL, ok := os.LookupEnv("REDIS_URL"); ok {
		config.RedisURL = redisURL
	} else {
		config.RedisURL = DefaultRedisURL
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"ISITSTOLEN_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"WHATSAPP_DB_DSN_SET", os.Getenv("WHATSAPP_DB_DSN") != "",
		"REDIS_URL_SET", config.RedisURL != "",
		"NATS_URL_SET", config.NATSURL != "",
		"FLOWS_CONFIG", config.FlowsConfig,
		"USE_CONFIG_FLOWS", config.UseConfigFlows,
		"MESSAGING_TRANSPORT", config.Transport,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"API_ADDR", config.APIAddr)

	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:         flag.String("qr-output", "", "path to write login QR code"),
		numeric:          flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for IsItStolen data (overrides $ISITSTOLEN_STATE_DIR)"),
		dbDSN:            flag.String("db-dsn", config.DatabaseURL, "Postgres DSN or SQLite path for reports and tickets (overrides $DATABASE_URL)"),
		whatsAppDSN:      flag.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "database DSN for the WhatsApp session (overrides $WHATSAPP_DB_DSN)"),
		redisURL:         flag.String("redis-url", config.RedisURL, "Redis URL for conversation state; empty for in-memory (overrides $REDIS_URL)"),
		natsURL:          flag.String("nats-url", config.NATSURL, "NATS URL for domain events (overrides $NATS_URL)"),
		flowsConfig:      flag.String("flows-config", config.FlowsConfig, "flow definition file (overrides $FLOWS_CONFIG)"),
		categoryKeywords: flag.String("category-keywords", config.CategoryKeywords, "item category keyword file (overrides $CATEGORY_KEYWORDS)"),
		useConfigFlows:   flag.Bool("use-config-flows", config.UseConfigFlows, "run check/report/contact through the flow engine (overrides $USE_CONFIG_FLOWS)"),
		contextTTL:       flag.Duration("context-ttl", config.ContextTTL, "conversation idle timeout (overrides $CONTEXT_TTL)"),
		rateLimitMax:     flag.Int("rate-limit-max", config.RateLimitMax, "messages allowed per phone per window (overrides $RATE_LIMIT_MAX)"),
		rateLimitWindow:  flag.Duration("rate-limit-window", config.RateLimitWindow, "rate limit window (overrides $RATE_LIMIT_WINDOW)"),
		transport:        flag.String("transport", config.Transport, "messaging transport: whatsapp, twilio or none (overrides $MESSAGING_TRANSPORT)"),
		apiAddr:          flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		logLevel:         flag.String("log-level", config.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)"),
		twilioSID:        config.TwilioSID,
		twilioToken:      config.TwilioToken,
		twilioFrom:       config.TwilioFrom,
	}

	flag.Parse()

	// Follow a moved state directory unless the DSNs were set explicitly.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.whatsAppDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.whatsAppDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated DSNs based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"transport", *flags.transport,
		"useConfigFlows", *flags.useConfigFlows,
		"apiAddr", *flags.apiAddr)

	return flags
}

// ensureDirectoriesExist creates the state directory and the parent of a file-based DSN
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, store.DefaultDirPermissions); err != nil {
			slog.Error("Failed to create state directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsAppDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsAppDSN))
	}
	if parseLogLevel(*flags.logLevel) == slog.LevelDebug {
		waOpts = append(waOpts, whatsapp.WithLogLevel("DEBUG"))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio client options; unset values fall back to the
// client's own environment lookup.
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if flags.twilioSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(flags.twilioSID))
	}
	if flags.twilioToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(flags.twilioToken))
	}
	if flags.twilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(flags.twilioFrom))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		return storeOpts
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
