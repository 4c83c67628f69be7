package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fxledger/internal/cli"
	applog "fxledger/internal/log"
	"fxledger/internal/middleware/security"
	"fxledger/internal/middleware/trace"
	"fxledger/internal/proxy"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentProxy)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	detector := security.NewDetector(logger)
	h := proxy.New(proxy.Config{
		UpstreamURL: cfg.ProxyUpstreamURL,
		Timeout:     cfg.RatesTimeout,
	}, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(trace.NewMiddleware(detector.ExtractClientIP, logger.WithComponent(applog.ComponentTrace)).Middleware)
	r.Use(applog.Middleware(logger))
	r.Use(detector.Middleware)
	r.Handle("/", h)
	r.Handle("/api/exchange_rates", h)

	srv := &http.Server{
		Addr:           ":" + cfg.ProxyPort,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext()
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Proxy shutdown error", applog.FieldError, err)
		}
	}()

	logger.Info("Starting rate proxy",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.ProxyPort,
		"upstream", cfg.ProxyUpstreamURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Proxy server error", applog.FieldError, err, "port", cfg.ProxyPort)
		os.Exit(1)
	}

	logger.Info("Proxy stopped gracefully")
}
