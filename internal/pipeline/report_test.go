package pipeline_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croftlab/site-weather-etl/internal/pipeline"
)

func TestWriteReport_RoundTrip(t *testing.T) {
	report := pipeline.Report{
		RunID:      "f1b4c9f2-0000-0000-0000-000000000000",
		Stage:      "fetch",
		StartedAt:  time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, time.June, 1, 12, 8, 30, 0, time.UTC),
		RosterRows: 700,
		SiteYears:  698,
		Succeeded:  696,
		Failed:     2,
		Failures: []pipeline.Failure{
			{Kind: pipeline.FailureValidation, Line: 14, Detail: "lat 92 outside coverage 14..83"},
			{Kind: pipeline.FailureFetch, Site: "Lubbock, TX", Year: 1981, Attempts: 4, Detail: "status 500"},
		},
	}

	path := filepath.Join(t.TempDir(), "reports", "fetch_report.json")
	require.NoError(t, pipeline.WriteReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got pipeline.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, report, got)
}

func TestWriteReport_OmitsEmptyStageFields(t *testing.T) {
	report := pipeline.Report{
		RunID: "a", Stage: "features",
		SiteYears: 2, Succeeded: 2,
	}

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, pipeline.WriteReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	assert.NotContains(t, text, "roster_rows", "fetch-only counters stay out of a features report")
	assert.NotContains(t, text, "cache_hits")
	assert.NotContains(t, text, "failures")
}

func TestReport_AddRowFailure(t *testing.T) {
	var report pipeline.Report
	report.AddRowFailure(3, `year "198O" is not an integer`)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, pipeline.FailureValidation, report.Failures[0].Kind)
	assert.Equal(t, 3, report.Failures[0].Line)
	assert.Contains(t, report.Failures[0].Detail, "not an integer")
}
