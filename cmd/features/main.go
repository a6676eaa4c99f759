// Command features runs the second pipeline stage: it reads the unified
// daily dataset, buckets each site-year by calendar month, computes the
// configured per-variable statistics, and writes the wide feature table
// plus a run report. XLSX_PATH additionally renders the table as a
// spreadsheet.
//
// Exit status 0 means the artifacts were written; excluded daily records
// are listed in the report. Status 1 means no usable output was produced.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/croftlab/site-weather-etl/internal/config"
	"github.com/croftlab/site-weather-etl/internal/dataset"
	"github.com/croftlab/site-weather-etl/internal/domain"
	"github.com/croftlab/site-weather-etl/internal/observability"
	"github.com/croftlab/site-weather-etl/internal/pipeline"
)

func main() {
	// A .env file, when present, seeds the environment for local runs.
	_ = godotenv.Load()

	cfg, err := config.LoadFeatures()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("features stage failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.FeaturesConfig, logger *slog.Logger, metrics *observability.Metrics) error {
	ds, err := dataset.ReadDailyFile(cfg.DailyPath)
	if err != nil {
		return fmt.Errorf("read daily dataset: %w", err)
	}
	logger.Info("daily dataset loaded", "rows", len(ds.Rows), "variables", len(ds.Variables))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stage := pipeline.NewFeatures(domain.DefaultAggregation(), domain.DefaultPrecision, logger, metrics)
	result, err := stage.Run(ctx, ds)
	if err != nil {
		return fmt.Errorf("features stage: %w", err)
	}

	if err := dataset.WriteWideFile(cfg.WidePath, result.Table); err != nil {
		return fmt.Errorf("write wide table: %w", err)
	}
	if cfg.XLSXPath != "" {
		if err := dataset.WriteWideXLSXFile(cfg.XLSXPath, result.Table); err != nil {
			return fmt.Errorf("write xlsx table: %w", err)
		}
		logger.Info("xlsx table written", "path", cfg.XLSXPath)
	}
	if err := pipeline.WriteReport(cfg.ReportPath, result.Report); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}

	logger.Info("artifacts written",
		"wide_table", cfg.WidePath,
		"report", cfg.ReportPath,
		"feature_rows", len(result.Table.Rows),
		"excluded_records", result.Report.Failed,
	)
	return nil
}
