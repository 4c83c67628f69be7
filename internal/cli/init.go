// Package cli provides common CLI initialization utilities shared by
// cmd/fxledger, cmd/rate-proxy and cmd/ledger-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fxledger/internal/config"
	applog "fxledger/internal/log"
)

// ShutdownTimeout bounds how long servers get to drain on exit.
const ShutdownTimeout = 30 * time.Second

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Format:    os.Getenv("LOG_FORMAT"),
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger.WithComponent(component)
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fail(logger, err)
	}
	return cfg
}

// LoadAndValidateWorkerConfig is LoadAndValidateConfig plus the settings
// only the ledger worker needs.
func LoadAndValidateWorkerConfig(logger *applog.Logger) *config.Config {
	cfg := LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		fail(logger, err)
	}
	return cfg
}

func fail(logger *applog.Logger, err error) {
	logger.Error("Configuration validation failed",
		applog.FieldErrorType, applog.ErrorTypeConfiguration,
		applog.FieldError, err)
	os.Exit(1)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)
	}()
	return ctx, stop
}

// ShutdownContext is the bounded context used once the process is stopping.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ShutdownTimeout)
}
