package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/parley/pkg/cmd"
	"github.com/dukex/parley/pkg/log"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/services"
	"github.com/dukex/parley/pkg/session"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

var ErrDatabaseURLRequired = errors.New("--database-url or DATABASE_URL is required")

const (
	defaultPort    = 9091
	defaultEnvFile = ".env"
	serviceName    = "parley-api"
)

func main() {
	loadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Manage conversation workflows and channel routing",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file://, postgres://, redis://)",
				Local:   true,
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   cmd.EventBusGoChannel,
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "audit-schedule",
				Usage:   "Cron schedule of the stale default flow audit",
				Value:   services.DefaultAuditSchedule,
				Sources: cli.EnvVars("AUDIT_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "session-buffer",
				Usage:   "Pending updates kept per realtime session",
				Value:   session.DefaultBufferSize,
				Sources: cli.EnvVars("SESSION_BUFFER_SIZE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   log.FormatText,
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: runAPI,
	}

	if err := command.Run(ctx, os.Args); err != nil {
		slog.Error("parley-api failed", "error", err)
		os.Exit(1)
	}
}

// loadEnvFile reads PARLEY_ENV_FILE, or .env, into the environment when it exists.
func loadEnvFile() {
	path := os.Getenv("PARLEY_ENV_FILE")
	if path == "" {
		path = defaultEnvFile
	}

	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load env file", "path", path, "error", err)
	}
}

func runAPI(ctx context.Context, command *cli.Command) error {
	databaseURL := command.String("database-url")
	if databaseURL == "" {
		return ErrDatabaseURLRequired
	}

	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Parley API")

	if command.Bool("otel-enabled") {
		shutdown, err := otelhelper.Setup(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	persistence, err := cmd.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	auditor := services.NewAuditor(persistence, eventBus, logger)
	if err := auditor.RegisterHandlers(eventBus); err != nil {
		return fmt.Errorf("failed to register audit handlers: %w", err)
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	if err := auditor.Start(ctx, command.String("audit-schedule")); err != nil {
		return err
	}
	defer auditor.Stop()

	sessions := session.NewManager(logger, eventBus.SessionSubscriber, command.Int("session-buffer"))
	if err := sessions.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session manager: %w", err)
	}
	defer sessions.CloseAll()

	api := NewAPI(logger, persistence, eventBus, sessions)

	return api.Start(ctx, command.Int("port"))
}
