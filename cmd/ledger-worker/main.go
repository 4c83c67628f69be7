package main

import (
	"context"
	"errors"
	"os"

	"fxledger/internal/amqp"
	"fxledger/internal/cli"
	applog "fxledger/internal/log"
	"fxledger/internal/sheets"
	gsheet "fxledger/internal/sheets/google"
	memsheets "fxledger/internal/sheets/memory"
	"fxledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting ledger-worker", applog.FieldOperation, applog.OpStartup)

	cfg := cli.LoadAndValidateWorkerConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	var target sheets.Mirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromConfig(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			IncomeSheet:        cfg.GoogleSheetName,
			QuartersSheet:      cfg.GoogleQuartersSheet,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		target = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		target = memsheets.New()
		logger.Warn("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
	}

	mirror := worker.NewMirrorWorker(target, logger)

	// Events may have been applied while the worker was down.
	if err := mirror.RefreshSummary(ctx); err != nil {
		logger.Warn("Startup summary refresh failed", applog.FieldError, err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	if err := amqpClient.Consume(ctx, mirror.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete")
}
