package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"fxledger/internal/backend"
	"fxledger/internal/cli"
	apphttp "fxledger/internal/http"
	applog "fxledger/internal/log"
	"fxledger/internal/proxy"
	"fxledger/internal/rates"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create ledger backend",
			applog.FieldErrorType, applog.ErrorTypeConfiguration,
			applog.FieldError, err,
			"backend", cfg.LedgerBackend)
		os.Exit(1)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Failed to release ledger backend", applog.FieldError, err)
		}
	}()

	rateProxy := proxy.New(proxy.Config{
		UpstreamURL: cfg.ProxyUpstreamURL,
		Timeout:     cfg.RatesTimeout,
	}, logger.WithComponent(applog.ComponentProxy))

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Proxy:              rateProxy,
		Checks:             readinessChecks(result.Checks),
		Logger:             logger.WithComponent(applog.ComponentHTTP),
		// a create may spend the whole retry budget before it answers
		WriteTimeout: rates.WorstCaseDuration(cfg.RatesMaxAttempts, cfg.RatesTimeout) + 10*time.Second,
	}, result.Service)
	if err != nil {
		logger.Error("Failed to build HTTP server", applog.FieldError, err)
		os.Exit(1)
	}

	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting fxledger server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"backend", cfg.LedgerBackend,
			"amqp_enabled", cfg.AMQPURL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext()
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}

func readinessChecks(checks map[string]backend.CheckFunc) []apphttp.ReadinessCheck {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]apphttp.ReadinessCheck, 0, len(names))
	for _, name := range names {
		check := checks[name]
		out = append(out, apphttp.ReadinessCheck{
			Name:  name,
			Check: func(ctx context.Context) error { return check(ctx) },
		})
	}
	return out
}
