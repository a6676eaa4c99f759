// Command fetch runs the first pipeline stage: it reads the site-year
// roster, fetches one year of daily weather per roster row from the
// point-weather API, and writes the unified daily dataset plus a run
// report.
//
// Configuration comes from the environment (see internal/config). Exit
// status 0 means the artifacts were written; per-row and per-site-year
// failures are recorded in the report, not signalled through the exit
// status. Status 1 means the run produced no usable output: bad
// configuration, an unreadable roster, an unwritable artifact,
// cancellation, or every site-year failing.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/croftlab/site-weather-etl/internal/adapter/daymet"
	httpadapter "github.com/croftlab/site-weather-etl/internal/adapter/http"
	kafkaadapter "github.com/croftlab/site-weather-etl/internal/adapter/kafka"
	"github.com/croftlab/site-weather-etl/internal/config"
	"github.com/croftlab/site-weather-etl/internal/dataset"
	"github.com/croftlab/site-weather-etl/internal/observability"
	"github.com/croftlab/site-weather-etl/internal/pipeline"
	"github.com/croftlab/site-weather-etl/internal/roster"
	"github.com/croftlab/site-weather-etl/internal/store"
)

func main() {
	// A .env file, when present, seeds the environment for local runs.
	_ = godotenv.Load()

	cfg, err := config.LoadFetch()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("fetch stage failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.FetchConfig, logger *slog.Logger, metrics *observability.Metrics) error {
	ros, rowErrs, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	for _, re := range rowErrs {
		metrics.RosterRowsRejected.Inc()
		logger.Warn("roster row rejected", "line", re.Line, "reason", re.Reason)
	}
	logger.Info("roster loaded",
		"site_years", len(ros.Rows),
		"rejected_rows", len(rowErrs),
		"extra_columns", ros.ExtraColumns,
	)

	fetcher := daymet.NewClient(daymet.Config{
		BaseURL:         cfg.BaseURL,
		Timeout:         cfg.RequestTimeout,
		RetryMaxElapsed: cfg.RetryMaxElapsed,
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
	}, metrics, logger)

	// SQLite fetch cache (feature-flagged via CACHE_PATH).
	var cache pipeline.SeriesCache
	if cfg.CachePath != "" {
		db, err := store.Open(cfg.CachePath)
		if err != nil {
			return fmt.Errorf("open fetch cache: %w", err)
		}
		defer db.Close()

		st := store.New(db, logger)
		if err := st.Migrate(); err != nil {
			return fmt.Errorf("migrate fetch cache: %w", err)
		}
		cache = st
		logger.Info("fetch cache enabled", "path", cfg.CachePath)
	} else {
		logger.Info("fetch cache disabled")
	}

	// Kafka observation sink (feature-flagged via KAFKA_BROKERS).
	var sink pipeline.ObservationSink
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sink = writer
		logger.Info("observation sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("observation sink disabled")
	}

	stage := pipeline.NewFetch(fetcher, cache, sink, cfg.Variables, cfg.Workers, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ops listener (feature-flagged via METRICS_ADDR).
	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, "fetch", stage, stage, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("ops server shutdown error", "error", err)
			}
		}()
	}

	result, err := stage.Run(ctx, ros.Rows, ros.ExtraColumns)
	if err != nil {
		return fmt.Errorf("fetch stage: %w", err)
	}

	// Fold roster validation failures into the run report so one artifact
	// accounts for every input row.
	report := result.Report
	report.RosterRows = len(ros.Rows) + len(rowErrs)
	for _, re := range rowErrs {
		report.AddRowFailure(re.Line, re.Reason)
	}
	report.SortFailures()

	if err := dataset.WriteDailyFile(cfg.DailyPath, result.Dataset); err != nil {
		return fmt.Errorf("write daily dataset: %w", err)
	}
	if err := pipeline.WriteReport(cfg.ReportPath, report); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}

	logger.Info("artifacts written",
		"daily_dataset", cfg.DailyPath,
		"report", cfg.ReportPath,
		"rows", len(result.Dataset.Rows),
	)

	if report.Succeeded == 0 && len(ros.Rows) > 0 {
		return fmt.Errorf("no site-year succeeded (%d failed); see %s", report.Failed, cfg.ReportPath)
	}
	return nil
}
