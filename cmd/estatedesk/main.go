package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/estatedesk/estatedesk/internal/api"
	"github.com/estatedesk/estatedesk/internal/calendar"
	"github.com/estatedesk/estatedesk/internal/crm"
	"github.com/estatedesk/estatedesk/internal/flow"
	"github.com/estatedesk/estatedesk/internal/genai"
	"github.com/estatedesk/estatedesk/internal/messaging"
	"github.com/estatedesk/estatedesk/internal/scheduling"
	"github.com/estatedesk/estatedesk/internal/store"
	"github.com/estatedesk/estatedesk/internal/twiliowhatsapp"
	"github.com/estatedesk/estatedesk/internal/util"
	"github.com/estatedesk/estatedesk/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for EstateDesk state data
	DefaultStateDir = "/var/lib/estatedesk"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "estatedesk.db"
	// DefaultSessionDBFileName is the SQLite filename for the whatsmeow
	// session store when the conversation DSN has no SQL driver.
	DefaultSessionDBFileName = "whatsmeow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping EstateDesk with configured modules")
	if err := run(ctx, flags); err != nil {
		slog.Error("EstateDesk failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("EstateDesk exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL      string
	AWSRegion        string
	StateDir         string
	OpenAIKey        string
	APIAddr          string
	UseTwilio        bool
	HistoryPairs     int
	CalendarURL      string
	CRMURL           string
	CRMAPIKey        string
	SystemPromptFile string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	dbDSN            *string
	awsRegion        *string
	openaiKey        *string
	apiAddr          *string
	useTwilio        *bool
	historyPairs     *int
	calendarURL      *string
	crmURL           *string
	crmAPIKey        *string
	systemPromptFile *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		AWSRegion:        os.Getenv("AWS_REGION"),
		StateDir:         util.EnvOrDefault("ESTATEDESK_STATE_DIR", DefaultStateDir),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		UseTwilio:        util.ParseBoolEnv("USE_TWILIO", false),
		HistoryPairs:     util.ParseIntEnv("HISTORY_PAIRS", 0),
		CalendarURL:      os.Getenv("CALENDAR_API_URL"),
		CRMURL:           os.Getenv("CRM_API_URL"),
		CRMAPIKey:        os.Getenv("CRM_API_KEY"),
		SystemPromptFile: os.Getenv("SYSTEM_PROMPT_FILE"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"ESTATEDESK_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"USE_TWILIO", config.UseTwilio,
		"CALENDAR_API_URL_SET", config.CalendarURL != "",
		"CRM_API_URL_SET", config.CRMURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:         flag.String("qr-output", "", "path to write login QR code"),
		numeric:          flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for EstateDesk data (overrides $ESTATEDESK_STATE_DIR)"),
		dbDSN:            flag.String("db-dsn", config.DatabaseURL, "database DSN for conversation storage (overrides $DATABASE_URL)"),
		awsRegion:        flag.String("aws-region", config.AWSRegion, "AWS region for DynamoDB storage (overrides $AWS_REGION)"),
		openaiKey:        flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:          flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		useTwilio:        flag.Bool("use-twilio", config.UseTwilio, "use Twilio for WhatsApp messaging instead of whatsmeow (overrides $USE_TWILIO)"),
		historyPairs:     flag.Int("history-pairs", config.HistoryPairs, "user/assistant exchange pairs loaded as model context, 0 for the built-in default (overrides $HISTORY_PAIRS)"),
		calendarURL:      flag.String("calendar-url", config.CalendarURL, "calendar service endpoint for consultation booking (overrides $CALENDAR_API_URL)"),
		crmURL:           flag.String("crm-url", config.CRMURL, "CRM endpoint for conversation logging (overrides $CRM_API_URL)"),
		crmAPIKey:        flag.String("crm-api-key", config.CRMAPIKey, "CRM API key (overrides $CRM_API_KEY)"),
		systemPromptFile: flag.String("system-prompt-file", config.SystemPromptFile, "path to a custom system prompt file (overrides $SYSTEM_PROMPT_FILE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"useTwilio", *flags.useTwilio)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		slog.Debug("Creating state directory", "state_dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// openStore opens the conversation store selected by the DSN.
func openStore(ctx context.Context, flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	switch store.DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	case "dynamodb":
		table := dsn[len("dynamodb://"):]
		slog.Debug("Detected DynamoDB DSN, configuring DynamoDB store", "table", table)
		opts := []store.Option{store.WithDynamoTable(table)}
		if *flags.awsRegion != "" {
			opts = append(opts, store.WithAWSRegion(*flags.awsRegion))
		}
		return store.NewDynamoStore(ctx, opts...)
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
}

// run wires the modules together and blocks until shutdown.
func run(ctx context.Context, flags Flags) error {
	st, err := openStore(ctx, flags)
	if err != nil {
		return err
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	var scheduler calendar.Scheduler
	if *flags.calendarURL != "" {
		calendarClient, err := calendar.NewClient(calendar.WithBaseURL(*flags.calendarURL))
		if err != nil {
			return err
		}
		scheduler = calendarClient
	} else {
		slog.Warn("No calendar endpoint configured; consultation booking is disabled")
	}
	negotiator := scheduling.NewNegotiator(st, scheduler)

	var crmLogger crm.Logger
	if *flags.crmURL != "" {
		crmClient, err := crm.NewClient(crm.WithBaseURL(*flags.crmURL), crm.WithAPIKey(*flags.crmAPIKey))
		if err != nil {
			return err
		}
		crmLogger = crmClient
	} else {
		slog.Warn("No CRM endpoint configured; conversation logging is disabled")
	}

	conversationFlow := flow.NewConversationFlow(st, genaiClient, negotiator, crmLogger, *flags.systemPromptFile)
	if *flags.historyPairs > 0 {
		conversationFlow.SetHistoryPairs(*flags.historyPairs)
	}
	if *flags.systemPromptFile != "" {
		if err := conversationFlow.LoadSystemPrompt(); err != nil {
			slog.Warn("Failed to load system prompt file, using default", "error", err)
		}
	}

	// Messaging backend: Twilio (webhook-driven) or whatsmeow (connection-driven).
	var (
		msgService   messaging.Service
		emitter      *messaging.TwilioService
		twilioSender twiliowhatsapp.TwilioWhatsAppSender
	)
	if *flags.useTwilio {
		twilioClient, err := twiliowhatsapp.NewClient()
		if err != nil {
			return err
		}
		twilioService := messaging.NewTwilioService(twilioClient)
		msgService = twilioService
		emitter = twilioService
		twilioSender = twilioClient
	} else {
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(whatsmeowDSN(flags))}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return err
		}
		msgService = messaging.NewWhatsAppService(waClient)
	}

	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	respHandler := messaging.NewResponseHandler(msgService, conversationFlow, genaiClient)
	respHandler.Start(ctx)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	// emitter is a typed nil unless Twilio mode is active; pass the interface
	// only when set so the webhook handler can detect its absence.
	server := api.NewServer(msgService, emitterOrNil(emitter), st, twilioSender, apiOpts...)
	return server.Run(ctx)
}

// whatsmeowDSN selects the session database DSN for the whatsmeow client.
// SQL conversation DSNs are shared with the session store; DynamoDB has no
// whatsmeow driver, so those deployments keep session data in local SQLite.
func whatsmeowDSN(flags Flags) string {
	dsn := *flags.dbDSN
	if store.DetectDSNType(dsn) != "dynamodb" {
		return dsn
	}
	sessionPath := filepath.Join(*flags.stateDir, DefaultSessionDBFileName)
	slog.Info("Conversation store uses DynamoDB, keeping WhatsApp session data in SQLite", "session_db", sessionPath)
	return sessionPath
}

func emitterOrNil(emitter *messaging.TwilioService) api.InboundEmitter {
	if emitter == nil {
		return nil
	}
	return emitter
}
