package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/croftlab/site-weather-etl/internal/domain"
	"github.com/croftlab/site-weather-etl/internal/observability"
)

// FeaturesResult carries the wide feature table and the run report.
type FeaturesResult struct {
	Table  domain.WideTable
	Report Report
}

// Features runs stage 2: the unified daily dataset through month
// bucketing and the configured per-variable statistics into the wide
// feature table.
type Features struct {
	spec      []domain.VariableStatistic
	precision int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewFeatures creates the aggregation stage.
func NewFeatures(spec []domain.VariableStatistic, precision int, logger *slog.Logger, metrics *observability.Metrics) *Features {
	return &Features{
		spec:      spec,
		precision: precision,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run aggregates the dataset. Individually bad daily records are excluded
// and reported; the table is still produced from the rest. In the report,
// SiteYears and Succeeded count emitted wide rows while Failed counts
// excluded daily records.
func (a *Features) Run(ctx context.Context, ds domain.DailyDataset) (FeaturesResult, error) {
	if err := ctx.Err(); err != nil {
		return FeaturesResult{}, err
	}

	start := time.Now()
	a.logger.Info("features stage started",
		"records", len(ds.Rows), "variables", len(ds.Variables))
	a.metrics.StageRunning.Set(1)
	defer a.metrics.StageRunning.Set(0)

	report := Report{
		RunID:     uuid.NewString(),
		Stage:     "features",
		StartedAt: domain.Now().UTC(),
	}

	table, recordErrs := domain.Aggregate(ds, a.spec, a.precision)

	a.metrics.RecordsAggregated.Add(float64(len(ds.Rows) - len(recordErrs)))
	a.metrics.RecordsRejected.Add(float64(len(recordErrs)))
	a.metrics.FeatureRowsEmitted.Add(float64(len(table.Rows)))

	for _, re := range recordErrs {
		a.logger.Warn("daily record excluded",
			"site", re.Site, "year", re.Year, "yday", re.Yday, "reason", re.Reason)
		report.addRecordFailure(re)
	}

	report.SiteYears = len(table.Rows)
	report.Succeeded = len(table.Rows)
	report.Failed = len(recordErrs)
	report.Observations = len(ds.Rows)
	report.FeatureRows = len(table.Rows)
	report.FinishedAt = domain.Now().UTC()
	report.SortFailures()

	a.logger.Info("features stage finished",
		"feature_rows", len(table.Rows),
		"columns", len(table.Schema),
		"records_rejected", len(recordErrs),
		"duration", time.Since(start))

	return FeaturesResult{Table: table, Report: report}, nil
}
