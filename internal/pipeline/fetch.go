// Package pipeline orchestrates the two batch stages: fetching per
// site-year weather series into the unified daily dataset, and deriving
// the monthly feature table from it. Stages are wired from interfaces so
// commands and tests choose the adapters.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/croftlab/site-weather-etl/internal/domain"
	"github.com/croftlab/site-weather-etl/internal/observability"
)

// WeatherFetcher retrieves one full year of daily weather for a site.
type WeatherFetcher interface {
	FetchYear(ctx context.Context, sy domain.SiteYear, vars []domain.Variable) ([]domain.DailyObservation, error)
}

// SeriesCache stores fetched series between runs.
type SeriesCache interface {
	GetSeries(ctx context.Context, sy domain.SiteYear, vars []domain.Variable) ([]domain.DailyObservation, bool, error)
	PutSeries(ctx context.Context, sy domain.SiteYear, vars []domain.Variable, obs []domain.DailyObservation) error
}

// ObservationSink receives each freshly fetched site-year series.
type ObservationSink interface {
	PublishSiteYear(ctx context.Context, sy domain.SiteYear, obs []domain.DailyObservation) error
}

// FetchResult carries the unified daily dataset and the run report.
type FetchResult struct {
	Dataset domain.DailyDataset
	Report  Report
}

// Fetch runs stage 1: every roster site-year through a bounded worker
// pool, one API fetch per site-year, failures isolated per site-year.
type Fetch struct {
	fetcher WeatherFetcher
	cache   SeriesCache
	sink    ObservationSink
	vars    []domain.Variable
	workers int
	logger  *slog.Logger
	metrics *observability.Metrics

	ready     atomic.Bool
	total     atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewFetch creates the fetch stage. Pass a nil cache or sink to disable
// that adapter.
func NewFetch(fetcher WeatherFetcher, cache SeriesCache, sink ObservationSink, vars []domain.Variable, workers int, logger *slog.Logger, metrics *observability.Metrics) *Fetch {
	if workers < 1 {
		workers = 1
	}
	return &Fetch{
		fetcher: fetcher,
		cache:   cache,
		sink:    sink,
		vars:    vars,
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once at least one site-year has completed.
func (f *Fetch) CheckReadiness(_ context.Context) error {
	if !f.ready.Load() {
		return errors.New("no site-year completed yet")
	}
	return nil
}

// Progress reports run counters for the ops progress endpoint.
func (f *Fetch) Progress() (total, completed, failed int) {
	return int(f.total.Load()), int(f.completed.Load()), int(f.failed.Load())
}

// Run fetches every site-year and accumulates the successes into one
// dataset, sorted by site, year, day. A failed site-year is reported and
// skipped; it never contributes partial rows. Run returns an error only
// when cancelled, never for per-site-year failures.
func (f *Fetch) Run(ctx context.Context, rows []domain.SiteYear, extraCols []string) (FetchResult, error) {
	start := time.Now()
	f.logger.Info("fetch stage started",
		"site_years", len(rows), "workers", f.workers, "variables", len(f.vars))
	f.metrics.StageRunning.Set(1)
	defer f.metrics.StageRunning.Set(0)

	report := Report{
		RunID:     uuid.NewString(),
		Stage:     "fetch",
		StartedAt: domain.Now().UTC(),
		SiteYears: len(rows),
	}
	f.total.Store(int64(len(rows)))

	var all []domain.DailyObservation
	for res := range f.runPool(ctx, rows) {
		if res.err != nil {
			f.metrics.SiteYearsProcessed.WithLabelValues("failed").Inc()
			f.failed.Add(1)
			report.Failed++
			report.addFetchFailure(res.sy, res.err)
			f.logger.Warn("site-year failed",
				"site", res.sy.Site, "year", res.sy.Year, "error", res.err)
			continue
		}

		outcome := "success"
		if res.cached {
			outcome = "cached"
			report.CacheHits++
		}
		f.metrics.SiteYearsProcessed.WithLabelValues(outcome).Inc()
		f.metrics.ObservationsCollected.Add(float64(len(res.obs)))
		f.completed.Add(1)
		f.ready.Store(true)
		report.Succeeded++
		all = append(all, res.obs...)
	}

	if err := ctx.Err(); err != nil {
		f.logger.Info("fetch stage cancelled", "reason", err)
		return FetchResult{}, err
	}

	domain.SortObservations(all)
	report.Observations = len(all)
	report.FinishedAt = domain.Now().UTC()
	report.SortFailures()

	f.logger.Info("fetch stage finished",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"cache_hits", report.CacheHits,
		"observations", report.Observations,
		"duration", time.Since(start))

	return FetchResult{
		Dataset: domain.DailyDataset{
			Variables:    f.vars,
			ExtraColumns: extraCols,
			Rows:         all,
		},
		Report: report,
	}, nil
}

type siteYearResult struct {
	sy     domain.SiteYear
	obs    []domain.DailyObservation
	cached bool
	err    error
}

// runPool fans the site-years out to the worker pool and returns the
// channel results arrive on. The channel closes when all workers finish.
func (f *Fetch) runPool(ctx context.Context, rows []domain.SiteYear) <-chan siteYearResult {
	tasks := make(chan domain.SiteYear)
	results := make(chan siteYearResult)

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sy := range tasks {
				obs, cached, err := f.processSiteYear(ctx, sy)
				results <- siteYearResult{sy: sy, obs: obs, cached: cached, err: err}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, sy := range rows {
			select {
			case tasks <- sy:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// processSiteYear resolves one site-year: cache, then API, then cache
// write and sink publish. Cache and sink errors are logged and absorbed;
// only the fetch itself can fail the site-year.
func (f *Fetch) processSiteYear(ctx context.Context, sy domain.SiteYear) ([]domain.DailyObservation, bool, error) {
	if f.cache != nil {
		obs, ok, err := f.cache.GetSeries(ctx, sy, f.vars)
		switch {
		case err != nil:
			f.logger.Warn("cache lookup failed, fetching",
				"site", sy.Site, "year", sy.Year, "error", err)
		case ok:
			f.metrics.CacheLookups.WithLabelValues("hit").Inc()
			return obs, true, nil
		default:
			f.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	obs, err := f.fetcher.FetchYear(ctx, sy, f.vars)
	if err != nil {
		return nil, false, err
	}

	if f.cache != nil {
		if err := f.cache.PutSeries(ctx, sy, f.vars, obs); err != nil {
			f.logger.Warn("cache write failed",
				"site", sy.Site, "year", sy.Year, "error", err)
		}
	}

	// Cached series were published by the run that fetched them, so only
	// fresh fetches go to the sink.
	if f.sink != nil {
		if err := f.sink.PublishSiteYear(ctx, sy, obs); err != nil {
			f.logger.Warn("sink publish failed",
				"site", sy.Site, "year", sy.Year, "error", err)
		} else {
			f.metrics.SinkMessages.Inc()
		}
	}

	return obs, false, nil
}
