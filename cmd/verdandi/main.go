package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/config"
	"github.com/friendsincode/verdandi/internal/db"
	"github.com/friendsincode/verdandi/internal/logbuffer"
	"github.com/friendsincode/verdandi/internal/logging"
	"github.com/friendsincode/verdandi/internal/server"
	"github.com/friendsincode/verdandi/internal/telemetry"
	"github.com/friendsincode/verdandi/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "verdandi",
	Short: "Verdandi - calendar interval service",
	Long:  "Verdandi computes ordered, gap-free calendar intervals over arbitrary windows and serves them as presets, subscription feeds and scheduled exports.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Verdandi server",
	Long:  "Start the HTTP API server, feed renderer and export scheduler",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Verdandi version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("verdandi %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment, cfg.LogLevel)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Recent entries stay queryable through the admin logs endpoint.
	logBuf := logbuffer.New(10000)
	logger = logging.SetupWithWriter(cfg.Environment, cfg.LogLevel, logbuffer.NewWriter(logBuf, nil))

	logger.Info().Str("version", version.Version).Msg("Verdandi starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "verdandi",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}

	logger.Info().Msg("shutting down gracefully...")

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Verdandi stopped")
	return nil
}

// initDatabase opens the configured database (used by offline commands).
func initDatabase() (*gorm.DB, error) {
	database, err := db.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, logger); err != nil {
		return nil, err
	}
	return database, nil
}
