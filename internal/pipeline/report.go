package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/croftlab/site-weather-etl/internal/domain"
)

// FailureKind classifies a run report failure per the error taxonomy:
// input validation, external dependency, data quality, or aggregation
// logic.
type FailureKind string

const (
	FailureValidation  FailureKind = "validation"
	FailureFetch       FailureKind = "fetch"
	FailureDataQuality FailureKind = "data-quality"
	FailureAggregation FailureKind = "aggregation"
)

// Failure is one reported row, site-year, or record failure. Validation
// failures carry the roster line; fetch failures carry the attempt count
// and whether the error was permanent or an exhausted retry budget.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Site      string      `json:"site,omitempty"`
	Year      int         `json:"year,omitempty"`
	Line      int         `json:"line,omitempty"`
	Yday      int         `json:"yday,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	Permanent bool        `json:"permanent,omitempty"`
	Detail    string      `json:"detail"`
}

// Report is the machine-readable account of one stage run: what was
// attempted, what succeeded, and every failure with enough detail to act
// on. A run that produced output with failures is distinguishable from a
// clean one.
type Report struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	RosterRows   int `json:"roster_rows,omitempty"`
	SiteYears    int `json:"site_years"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	CacheHits    int `json:"cache_hits,omitempty"`
	Observations int `json:"observations,omitempty"`
	FeatureRows  int `json:"feature_rows,omitempty"`

	Failures []Failure `json:"failures,omitempty"`
}

// AddRowFailure records one roster row rejected by input validation.
func (r *Report) AddRowFailure(line int, reason string) {
	r.Failures = append(r.Failures, Failure{
		Kind:   FailureValidation,
		Line:   line,
		Detail: reason,
	})
}

// addFetchFailure classifies and records one failed site-year. A fetch
// error wrapping a data-quality sentinel is reported as data quality, not
// as an upstream fault.
func (r *Report) addFetchFailure(sy domain.SiteYear, err error) {
	f := Failure{
		Kind:   FailureFetch,
		Site:   sy.Site,
		Year:   sy.Year,
		Detail: err.Error(),
	}
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		f.Attempts = fe.Attempts
		f.Permanent = fe.Permanent
	}
	if isDataQuality(err) {
		f.Kind = FailureDataQuality
	}
	r.Failures = append(r.Failures, f)
}

// addRecordFailure records one daily record excluded from aggregation.
func (r *Report) addRecordFailure(re domain.RecordError) {
	r.Failures = append(r.Failures, Failure{
		Kind:   FailureAggregation,
		Site:   re.Site,
		Year:   re.Year,
		Yday:   re.Yday,
		Detail: re.Reason,
	})
}

// SortFailures orders failures for deterministic report output:
// validation failures first by roster line, then everything else by site,
// year, day.
func (r *Report) SortFailures() {
	sort.Slice(r.Failures, func(i, j int) bool {
		a, b := r.Failures[i], r.Failures[j]
		la, lb := a.Line, b.Line
		if la == 0 {
			la = math.MaxInt
		}
		if lb == 0 {
			lb = math.MaxInt
		}
		if la != lb {
			return la < lb
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Yday < b.Yday
	})
}

func isDataQuality(err error) bool {
	return errors.Is(err, domain.ErrIncompleteYear) ||
		errors.Is(err, domain.ErrDuplicateDay) ||
		errors.Is(err, domain.ErrDayOutOfRange) ||
		errors.Is(err, domain.ErrMissingVariable)
}

// WriteReport writes the run report as indented JSON, creating parent
// directories as needed.
func WriteReport(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}
