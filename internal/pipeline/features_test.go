package pipeline_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croftlab/site-weather-etl/internal/dataset"
	"github.com/croftlab/site-weather-etl/internal/domain"
	"github.com/croftlab/site-weather-etl/internal/pipeline"
)

func newFeatures() *pipeline.Features {
	return pipeline.NewFeatures(domain.DefaultAggregation(), domain.DefaultPrecision, discardLogger(), newTestMetrics())
}

func datasetFor(vars []domain.Variable, rows ...domain.SiteYear) domain.DailyDataset {
	var obs []domain.DailyObservation
	for _, sy := range rows {
		obs = append(obs, fullYearSeries(sy, vars)...)
	}
	domain.SortObservations(obs)
	return domain.DailyDataset{Variables: vars, Rows: obs}
}

func TestFeatures_Run_FullYearProducesAllColumns(t *testing.T) {
	ds := datasetFor(domain.DefaultVariables(), siteYear("Altus, OK", 1981))

	result, err := newFeatures().Run(context.Background(), ds)
	require.NoError(t, err)

	table := result.Table
	require.Len(t, table.Schema, 72, "6 variables across 12 observed months")
	assert.Equal(t, "mean_dayl_Jan", table.Schema[0].Name())
	assert.Equal(t, "sum_prcp_Jan", table.Schema[12].Name())
	assert.Equal(t, "mean_vp_Dec", table.Schema[71].Name())

	require.Len(t, table.Rows, 1)
	for i, fv := range table.Rows[0].Features {
		assert.True(t, fv.Valid, "column %s should have a value", table.Schema[i].Name())
	}
}

func TestFeatures_Run_OneRowPerRosterSiteYear(t *testing.T) {
	rows := []domain.SiteYear{
		siteYear("Tucson, AZ", 1982),
		siteYear("Altus, OK", 1981),
		siteYear("Lubbock, TX", 1981),
		siteYear("Altus, OK", 1982),
		siteYear("Lubbock, TX", 1982),
		siteYear("Altus, OK", 1983),
	}
	ds := datasetFor(testVars, rows...)

	result, err := newFeatures().Run(context.Background(), ds)
	require.NoError(t, err)

	table := result.Table
	require.Len(t, table.Rows, len(rows), "every fetched site-year appears exactly once")

	seen := make(map[string]bool, len(table.Rows))
	for _, row := range table.Rows {
		key := row.Key()
		assert.False(t, seen[key], "site-year %s emitted twice", key)
		seen[key] = true
	}

	assert.Equal(t, "Altus, OK", table.Rows[0].Site)
	assert.Equal(t, 1981, table.Rows[0].Year)
	assert.Equal(t, "Tucson, AZ", table.Rows[5].Site)
}

func TestFeatures_Run_ReportCountsFailures(t *testing.T) {
	ds := datasetFor(testVars, siteYear("Altus, OK", 1981))
	// One record whose stated date disagrees with its day of year.
	ds.Rows[9].Date = ds.Rows[9].Date.AddDate(0, 0, 1)

	result, err := newFeatures().Run(context.Background(), ds)
	require.NoError(t, err)

	report := result.Report
	assert.Equal(t, "features", report.Stage)
	assert.Equal(t, 365, report.Observations)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.FeatureRows)

	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.Equal(t, pipeline.FailureAggregation, failure.Kind)
	assert.Equal(t, "Altus, OK", failure.Site)
	assert.Equal(t, 1981, failure.Year)
	assert.Equal(t, 10, failure.Yday)
	assert.Contains(t, failure.Detail, "disagrees")

	require.Len(t, result.Table.Rows, 1, "the site-year survives losing one record")
}

func TestFeatures_Run_SurvivesDatasetRoundTrip(t *testing.T) {
	ds := datasetFor(domain.DefaultVariables(),
		siteYear("Altus, OK", 1980),
		siteYear("Lubbock, TX", 1981),
	)

	direct, err := newFeatures().Run(context.Background(), ds)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, dataset.WriteDaily(&buf, ds))
	reread, err := dataset.ReadDaily(&buf)
	require.NoError(t, err)

	fromFile, err := newFeatures().Run(context.Background(), reread)
	require.NoError(t, err)

	if diff := cmp.Diff(direct.Table, fromFile.Table); diff != "" {
		t.Fatalf("aggregating the written dataset changed the result (-direct +roundtrip):\n%s", diff)
	}
}

func TestFeatures_Run_Deterministic(t *testing.T) {
	ds := datasetFor(domain.DefaultVariables(),
		siteYear("Altus, OK", 1981),
		siteYear("Lubbock, TX", 1981),
	)
	a, err := newFeatures().Run(context.Background(), ds)
	require.NoError(t, err)
	b, err := newFeatures().Run(context.Background(), ds)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Table, b.Table); diff != "" {
		t.Fatalf("aggregation is not deterministic:\n%s", diff)
	}
}

func TestFeatures_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newFeatures().Run(ctx, datasetFor(testVars, siteYear("Altus, OK", 1981)))
	assert.ErrorIs(t, err, context.Canceled)
}
