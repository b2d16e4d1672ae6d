package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BTreeMap/ScamPipe/internal/api"
	"github.com/BTreeMap/ScamPipe/internal/classify"
	"github.com/BTreeMap/ScamPipe/internal/engage"
	"github.com/BTreeMap/ScamPipe/internal/engine"
	"github.com/BTreeMap/ScamPipe/internal/genai"
	"github.com/BTreeMap/ScamPipe/internal/messaging"
	"github.com/BTreeMap/ScamPipe/internal/metrics"
	"github.com/BTreeMap/ScamPipe/internal/store"
	"github.com/BTreeMap/ScamPipe/internal/twiliosms"
	"github.com/BTreeMap/ScamPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ScamPipe state data
	DefaultStateDir = "/var/lib/scampipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "scampipe.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSweepInterval is how often idle conversations are swept
	DefaultSweepInterval = 5 * time.Minute
	// DefaultRetention is how long TERMINATED conversations are kept
	DefaultRetention = 30 * 24 * time.Hour
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("ScamPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ScamPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIBase  string
	APIAddr     string
	APIKey      string
	Channel     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	openaiBase  *string
	apiAddr     *string
	apiKey      *string
	channel     *string
	qrOutput    *string
	numeric     *bool
	maxTurns    *int
	idleTimeout *time.Duration
	retention   *time.Duration
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("SCAMPIPE_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBase:  os.Getenv("OPENAI_BASE_URL"),
		APIAddr:     os.Getenv("API_ADDR"),
		APIKey:      os.Getenv("API_KEY"),
		Channel:     os.Getenv("MESSAGING_CHANNEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SCAMPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"API_KEY_SET", config.APIKey != "",
		"MESSAGING_CHANNEL", config.Channel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for ScamPipe data (overrides $SCAMPIPE_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiBase:  flag.String("openai-base-url", config.OpenAIBase, "OpenAI-compatible API base URL (overrides $OPENAI_BASE_URL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		apiKey:      flag.String("api-key", config.APIKey, "API key required on /api/v1 endpoints (overrides $API_KEY)"),
		channel:     flag.String("channel", config.Channel, "messaging channel: whatsapp, twilio, or empty for API only (overrides $MESSAGING_CHANNEL)"),
		qrOutput:    flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		maxTurns:    flag.Int("max-turns", engage.DefaultMaxTurns, "maximum turns before forced disengagement"),
		idleTimeout: flag.Duration("idle-timeout", 24*time.Hour, "terminate conversations idle longer than this"),
		retention:   flag.Duration("retention", DefaultRetention, "purge terminated conversations older than this"),
	}

	flag.Parse()

	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(ctx context.Context, flags Flags) error {
	st, err := store.NewStore(
		store.WithDSN(*flags.dbDSN),
		store.WithIdleTimeout(*flags.idleTimeout),
	)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// The model backend is optional: without a key the classifier runs
	// heuristics only and replies come from templates.
	var generator genai.Generator
	var classifierOpts []classify.Option
	if *flags.openaiKey != "" {
		genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
		if *flags.openaiBase != "" {
			genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBase))
		}
		client, err := genai.NewClient(genaiOpts...)
		if err != nil {
			return err
		}
		generator = client
		classifierOpts = append(classifierOpts, classify.WithScorer(client))
		slog.Info("Model backend configured", "base_url_set", *flags.openaiBase != "")
	} else {
		slog.Warn("No OpenAI API key set; running with heuristic classification and template replies")
	}

	eng := engine.New(
		engine.WithStore(st),
		engine.WithClassifier(classify.New(classifierOpts...)),
		engine.WithSelector(engage.NewSelector(engage.WithMaxTurns(*flags.maxTurns))),
		engine.WithMetrics(m),
	)

	apiOpts := []api.Option{
		api.WithAPIKey(*flags.apiKey),
		api.WithGenerator(generator),
		api.WithRegistry(registry),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}

	svc, svcOpts, err := buildChannelService(flags)
	if err != nil {
		return err
	}
	if svc != nil {
		apiOpts = append(apiOpts, svcOpts...)
		if err := svc.Start(ctx); err != nil {
			return err
		}
		defer svc.Stop()

		responder := messaging.NewResponder(svc, eng,
			messaging.WithGenerator(generator),
			messaging.WithMetrics(m),
		)
		go responder.Run(ctx)
	}

	go runMaintenance(ctx, st, *flags.idleTimeout, *flags.retention)

	slog.Info("Bootstrapping ScamPipe", "channel", *flags.channel, "dsn_set", *flags.dbDSN != "")
	return api.NewServer(eng, apiOpts...).Run(ctx)
}

// buildChannelService constructs the configured messaging channel, plus any
// API routes it needs (the Twilio inbound webhook).
func buildChannelService(flags Flags) (messaging.Service, []api.Option, error) {
	switch strings.ToLower(*flags.channel) {
	case "whatsapp":
		var waOpts []whatsapp.Option
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case "twilio":
		client, err := twiliosms.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		route := api.WithRoute("/webhook/twilio", http.HandlerFunc(svc.WebhookHandler))
		return svc, []api.Option{route}, nil
	case "":
		return nil, nil, nil
	default:
		slog.Warn("Unknown messaging channel, running API only", "channel", *flags.channel)
		return nil, nil, nil
	}
}

// runMaintenance periodically sweeps idle conversations and purges expired
// terminated records.
func runMaintenance(ctx context.Context, st store.Store, idle, retention time.Duration) {
	ticker := time.NewTicker(DefaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if idle > 0 {
				if n, err := st.SweepIdle(ctx, idle); err != nil {
					slog.Error("Idle sweep failed", "error", err)
				} else if n > 0 {
					slog.Info("Idle sweep completed", "terminated", n)
				}
			}
			if retention > 0 {
				if n, err := st.PurgeTerminated(ctx, retention); err != nil {
					slog.Error("Retention purge failed", "error", err)
				} else if n > 0 {
					slog.Info("Retention purge completed", "purged", n)
				}
			}
		}
	}
}
