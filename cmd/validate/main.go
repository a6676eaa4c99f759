// Command validate performs end-to-end integrity checks across the
// pipeline's three file artifacts: the input roster, the unified daily
// dataset, and the wide monthly feature table. It verifies per-site-year
// completeness, schema invariants, and cross-artifact consistency by
// recomputing the features from the daily data.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -roster testdata/roster.csv \
//	  -daily testdata/daily_weather.csv \
//	  -wide data/monthly_features.csv
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"github.com/croftlab/site-weather-etl/internal/dataset"
	"github.com/croftlab/site-weather-etl/internal/domain"
	"github.com/croftlab/site-weather-etl/internal/roster"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	rosterPath := flag.String("roster", "", "path to the input roster CSV")
	dailyPath := flag.String("daily", "", "path to the unified daily dataset CSV")
	widePath := flag.String("wide", "", "path to the wide feature table CSV")
	flag.Parse()

	if *rosterPath == "" || *dailyPath == "" || *widePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*rosterPath, *dailyPath, *widePath); code != 0 {
		os.Exit(code)
	}
}

func run(rosterPath, dailyPath, widePath string) int {
	// ── Load all artifacts ──
	fmt.Println("=== Weather Pipeline Artifact Validation ===")
	fmt.Println()

	ros, rowErrs, err := roster.Load(rosterPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load roster: %v\n", err)
		return 1
	}

	ds, err := dataset.ReadDailyFile(dailyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load daily dataset: %v\n", err)
		return 1
	}

	table, err := dataset.ReadWideFile(widePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load wide table: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateRoster(ros, rowErrs),
		validateDaily(ds),
		validateWide(table, ros),
		validateCrossArtifact(table, ds, ros),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d roster, %d daily, %d wide\n",
		len(ros.Rows)+len(rowErrs), len(ds.Rows), len(table.Rows))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Roster Integrity ──
// Every roster row must parse, sit inside the coverage window, and be
// unique. The loader enforces the rules; rejected rows are listed here.

func validateRoster(ros roster.Roster, rowErrs []roster.RowError) *phase {
	p := &phase{name: "Phase 1: Roster Integrity"}

	for _, re := range rowErrs {
		p.errorf("line %d: %s", re.Line, re.Reason)
	}
	if len(ros.Rows) == 0 {
		p.errorf("roster has no valid rows")
	}
	return p
}

// ── Phase 2: Daily Dataset Integrity ──
// Each site-year must carry exactly one observation per calendar day with
// every declared variable, dates must agree with ydays, and the identity
// columns must not drift within a site-year.

func validateDaily(ds domain.DailyDataset) *phase {
	p := &phase{name: "Phase 2: Daily Dataset Integrity"}

	bySiteYear := make(map[string][]domain.DailyObservation)
	identity := make(map[string]domain.SiteYear)
	var keys []string
	var expected int

	for _, obs := range ds.Rows {
		key := obs.Key()
		if _, ok := bySiteYear[key]; !ok {
			keys = append(keys, key)
			identity[key] = obs.SiteYear
			expected += domain.DaysInYear(obs.Year)
		} else if first := identity[key]; first.Lat != obs.Lat || first.Lon != obs.Lon || !slices.Equal(first.Extra, obs.Extra) {
			p.errorf("%s yday %d: identity columns disagree with earlier rows", key, obs.Yday)
		}
		bySiteYear[key] = append(bySiteYear[key], obs)

		date, err := domain.DateForYday(obs.Year, obs.Yday)
		if err != nil {
			p.errorf("%s yday %d: %v", key, obs.Yday, err)
		} else if !obs.Date.Equal(date) {
			p.errorf("%s yday %d: date %s does not match calendar date %s",
				key, obs.Yday, obs.Date.Format(domain.DateLayout), date.Format(domain.DateLayout))
		}
	}

	if len(ds.Rows) != expected {
		p.errorf("row count: got %d, want %d (sum of days over %d site-years)",
			len(ds.Rows), expected, len(bySiteYear))
	}

	for _, key := range keys {
		if err := domain.ValidateSeries(identity[key], bySiteYear[key], ds.Variables); err != nil {
			p.errorf("%s: %v", key, err)
		}
	}
	return p
}

// ── Phase 3: Wide Table Integrity ──
// One row per valid roster site-year, a (statistic, variable) column for
// every month present, and every cell rounded to the table precision.

func validateWide(table domain.WideTable, ros roster.Roster) *phase {
	p := &phase{name: "Phase 3: Wide Table Integrity"}

	rosterKeys := make(map[string]bool, len(ros.Rows))
	for _, sy := range ros.Rows {
		rosterKeys[sy.Key()] = true
	}

	seen := make(map[string]bool, len(table.Rows))
	for i, row := range table.Rows {
		key := row.Key()
		if seen[key] {
			p.errorf("row %d: duplicate site-year %s", i+1, key)
			continue
		}
		seen[key] = true
		if !rosterKeys[key] {
			p.errorf("row %d: site-year %s not in roster", i+1, key)
		}
	}
	for _, sy := range ros.Rows {
		if !seen[sy.Key()] {
			p.errorf("roster site-year %s missing from wide table", sy.Key())
		}
	}

	checkWideSchema(p, table)
	checkWideRounding(p, table)
	return p
}

func checkWideSchema(p *phase, table domain.WideTable) {
	if len(table.Schema) == 0 {
		p.errorf("schema: no feature columns")
		return
	}

	spec := specFromSchema(table.Schema)
	monthSet := make(map[time.Month]bool)
	for _, col := range table.Schema {
		monthSet[col.Month] = true
	}
	months := make([]time.Month, 0, len(monthSet))
	for m := time.January; m <= time.December; m++ {
		if monthSet[m] {
			months = append(months, m)
		}
	}

	if len(table.Schema) != len(spec)*len(months) {
		p.errorf("schema: %d columns, want %d (%d variables x %d months)",
			len(table.Schema), len(spec)*len(months), len(spec), len(months))
	}
	if want := domain.BuildSchema(spec, months); !slices.Equal(table.Schema, want) {
		p.errorf("schema: columns are not variable-major in calendar month order")
	}

	for _, row := range table.Rows {
		if len(row.Features) != len(table.Schema) {
			p.errorf("%s: %d feature cells, want %d", row.Key(), len(row.Features), len(table.Schema))
		}
	}
}

func checkWideRounding(p *phase, table domain.WideTable) {
	for _, row := range table.Rows {
		for i, f := range row.Features {
			if i >= len(table.Schema) {
				break
			}
			if f.Valid && domain.RoundTo(f.Value, table.Precision) != f.Value {
				p.errorf("%s %s: value %v not rounded to %d decimal place(s)",
					row.Key(), table.Schema[i].Name(), f.Value, table.Precision)
			}
		}
	}
}

// ── Phase 4: Cross-Artifact Consistency ──
// Recomputes the feature table from the daily dataset through the real
// aggregator, using the statistic assignments the wide header declares,
// and compares every cell within float tolerance.

func validateCrossArtifact(table domain.WideTable, ds domain.DailyDataset, ros roster.Roster) *phase {
	p := &phase{name: "Phase 4: Cross-Artifact Consistency"}

	recomputed, recordErrs := domain.Aggregate(ds, specFromSchema(table.Schema), table.Precision)
	for _, re := range recordErrs {
		p.errorf("daily record rejected: %s|%d yday %d: %s", re.Site, re.Year, re.Yday, re.Reason)
	}

	if !slices.Equal(recomputed.Schema, table.Schema) {
		p.errorf("recomputed schema disagrees with wide table header")
		return p
	}
	if len(recomputed.Rows) != len(table.Rows) {
		p.errorf("recomputed %d rows, wide table has %d", len(recomputed.Rows), len(table.Rows))
		return p
	}

	rosterByKey := make(map[string]domain.SiteYear, len(ros.Rows))
	for _, sy := range ros.Rows {
		rosterByKey[sy.Key()] = sy
	}

	for i := range table.Rows {
		got, want := table.Rows[i], recomputed.Rows[i]
		key := want.Key()
		if got.Key() != key {
			p.errorf("row %d: site-year %s, recomputed %s", i+1, got.Key(), key)
			continue
		}
		if sy, ok := rosterByKey[key]; ok {
			if got.Lat != sy.Lat || got.Lon != sy.Lon {
				p.errorf("%s: coordinates (%g, %g) disagree with roster (%g, %g)",
					key, got.Lat, got.Lon, sy.Lat, sy.Lon)
			}
			if !slices.Equal(got.Extra, sy.Extra) {
				p.errorf("%s: carried columns %v disagree with roster %v", key, got.Extra, sy.Extra)
			}
		}
		compareFeatures(p, key, table.Schema, got.Features, want.Features)
	}
	return p
}

func compareFeatures(p *phase, key string, schema []domain.FeatureColumn, got, want []domain.FeatureValue) {
	if len(got) != len(want) {
		p.errorf("%s: %d cells, recomputed %d", key, len(got), len(want))
		return
	}
	for i := range got {
		name := schema[i].Name()
		switch {
		case got[i].Valid != want[i].Valid:
			p.errorf("%s %s: missing/present mismatch (artifact valid=%t, recomputed valid=%t)",
				key, name, got[i].Valid, want[i].Valid)
		case got[i].Valid && !floatEq(got[i].Value, want[i].Value):
			p.errorf("%s %s: %g, recomputed %g", key, name, got[i].Value, want[i].Value)
		}
	}
}

// ── Helpers ──

// specFromSchema recovers the per-variable statistic assignments from a
// wide header, in first-appearance order.
func specFromSchema(schema []domain.FeatureColumn) []domain.VariableStatistic {
	var spec []domain.VariableStatistic
	seen := make(map[domain.Variable]bool)
	for _, col := range schema {
		if seen[col.Variable] {
			continue
		}
		seen[col.Variable] = true
		spec = append(spec, domain.VariableStatistic{Variable: col.Variable, Statistic: col.Statistic})
	}
	return spec
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
