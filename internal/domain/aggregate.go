package domain

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
)

// Statistic is a summary function applied to one month bucket of daily
// values.
type Statistic string

const (
	StatMean Statistic = "mean"
	StatSum  Statistic = "sum"
)

// VariableStatistic assigns a summary statistic to one weather variable.
type VariableStatistic struct {
	Variable  Variable
	Statistic Statistic
}

// DefaultAggregation is the version-controlled {variable → statistic}
// table. Intensity-type variables average over the month; the
// accumulation-type variable prcp sums. Every servable variable has an
// assignment; only variables the dataset declares contribute columns.
func DefaultAggregation() []VariableStatistic {
	return []VariableStatistic{
		{VarDayLength, StatMean},
		{VarPrecipitation, StatSum},
		{VarRadiation, StatMean},
		{VarSnowWater, StatMean},
		{VarTempMax, StatMean},
		{VarTempMin, StatMean},
		{VarVaporPressure, StatMean},
	}
}

// DefaultPrecision is the number of decimal places kept in derived feature
// columns.
const DefaultPrecision = 1

// RoundTo rounds v to n decimal places, half away from zero.
func RoundTo(v float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(v*p) / p
}

// FeatureColumn names one derived wide-table column as a typed
// (variable, statistic, month) triple.
type FeatureColumn struct {
	Variable  Variable
	Statistic Statistic
	Month     time.Month
}

// Name returns the flattened column name, e.g. "mean_tmax_Jan".
func (c FeatureColumn) Name() string {
	return fmt.Sprintf("%s_%s_%s", c.Statistic, c.Variable, MonthLabel(c.Month))
}

// ParseFeatureColumn inverts Name when reading a wide-table header back.
func ParseFeatureColumn(name string) (FeatureColumn, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 3 {
		return FeatureColumn{}, fmt.Errorf("malformed feature column %q", name)
	}
	v, err := ParseVariable(parts[1])
	if err != nil {
		return FeatureColumn{}, fmt.Errorf("feature column %q: %w", name, err)
	}
	m, err := ParseMonthLabel(parts[2])
	if err != nil {
		return FeatureColumn{}, fmt.Errorf("feature column %q: %w", name, err)
	}
	switch Statistic(parts[0]) {
	case StatMean, StatSum:
	default:
		return FeatureColumn{}, fmt.Errorf("feature column %q: unknown statistic %q", name, parts[0])
	}
	return FeatureColumn{Variable: v, Statistic: Statistic(parts[0]), Month: m}, nil
}

// BuildSchema expands each (variable, statistic) assignment across the
// given months, variable-major with months in calendar order.
func BuildSchema(spec []VariableStatistic, months []time.Month) []FeatureColumn {
	schema := make([]FeatureColumn, 0, len(spec)*len(months))
	for _, vs := range spec {
		for _, m := range months {
			schema = append(schema, FeatureColumn{Variable: vs.Variable, Statistic: vs.Statistic, Month: m})
		}
	}
	return schema
}

// FeatureValue is one wide-table cell. Valid=false marks a missing value
// (an empty month bucket), which is distinct from a present zero.
type FeatureValue struct {
	Value float64
	Valid bool
}

// WideRow is one (site, year) row of the wide feature table, its features
// aligned with the table schema.
type WideRow struct {
	SiteYear
	Features []FeatureValue
}

// WideTable is the final exported artifact: one row per site-year, one
// column per schema entry, rounded to Precision decimal places.
type WideTable struct {
	ExtraColumns []string
	Schema       []FeatureColumn
	Rows         []WideRow
	Precision    int
}

// RecordError reports one daily record excluded from aggregation. The
// record's contribution is lost; the run continues.
type RecordError struct {
	Site   string
	Year   int
	Yday   int
	Reason string
}

type bucketKey struct {
	site  string
	year  int
	month time.Month
}

type accumulator struct {
	sum   float64
	count int
}

type siteYearKey struct {
	site string
	year int
}

// Aggregate derives the wide feature table from a unified daily dataset:
// date derivation, month bucketing, per-variable statistics from spec,
// wide pivot, and rounding. Records that fail date or identity checks are
// excluded individually and reported; the table is still produced from the
// remaining records. Output is deterministic for a given input: rows sort
// by site then year, columns follow spec order with months in calendar
// order.
func Aggregate(ds DailyDataset, spec []VariableStatistic, precision int) (WideTable, []RecordError) {
	active := activeSpec(ds.Variables, spec)

	buckets := make(map[bucketKey]map[Variable]*accumulator)
	identities := make(map[siteYearKey]SiteYear)
	monthsPresent := make(map[time.Month]bool)
	var recordErrs []RecordError

	reject := func(rec DailyObservation, reason string) {
		recordErrs = append(recordErrs, RecordError{
			Site: rec.Site, Year: rec.Year, Yday: rec.Yday, Reason: reason,
		})
	}

	for _, rec := range ds.Rows {
		date, err := DateForYday(rec.Year, rec.Yday)
		if err != nil {
			reject(rec, err.Error())
			continue
		}
		if !rec.Date.IsZero() && !rec.Date.Equal(date) {
			reject(rec, fmt.Sprintf("date %s disagrees with yday %d (%s)",
				rec.Date.Format(DateLayout), rec.Yday, date.Format(DateLayout)))
			continue
		}

		sk := siteYearKey{rec.Site, rec.Year}
		if first, ok := identities[sk]; !ok {
			identities[sk] = rec.SiteYear
		} else if first.Lat != rec.Lat || first.Lon != rec.Lon || !slices.Equal(first.Extra, rec.Extra) {
			reject(rec, "identifiers disagree with earlier rows for this site-year")
			continue
		}

		month := date.Month()
		monthsPresent[month] = true

		bk := bucketKey{rec.Site, rec.Year, month}
		vars := buckets[bk]
		if vars == nil {
			vars = make(map[Variable]*accumulator)
			buckets[bk] = vars
		}
		for _, vs := range active {
			v, ok := rec.Values[vs.Variable]
			if !ok {
				continue // missing daily value: contributes nothing
			}
			acc := vars[vs.Variable]
			if acc == nil {
				acc = &accumulator{}
				vars[vs.Variable] = acc
			}
			acc.sum += v
			acc.count++
		}
	}

	schema := BuildSchema(active, sortedMonths(monthsPresent))

	keys := make([]siteYearKey, 0, len(identities))
	for k := range identities {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].site != keys[j].site {
			return keys[i].site < keys[j].site
		}
		return keys[i].year < keys[j].year
	})

	rows := make([]WideRow, 0, len(keys))
	for _, k := range keys {
		features := make([]FeatureValue, len(schema))
		for i, col := range schema {
			acc := buckets[bucketKey{k.site, k.year, col.Month}][col.Variable]
			if acc == nil || acc.count == 0 {
				continue // empty bucket stays missing, never zero
			}
			v := acc.sum
			if col.Statistic == StatMean {
				v = acc.sum / float64(acc.count)
			}
			features[i] = FeatureValue{Value: RoundTo(v, precision), Valid: true}
		}
		rows = append(rows, WideRow{SiteYear: identities[k], Features: features})
	}

	return WideTable{
		ExtraColumns: ds.ExtraColumns,
		Schema:       schema,
		Rows:         rows,
		Precision:    precision,
	}, recordErrs
}

// activeSpec keeps the spec entries whose variable the dataset declares,
// preserving spec order.
func activeSpec(declared []Variable, spec []VariableStatistic) []VariableStatistic {
	active := make([]VariableStatistic, 0, len(spec))
	for _, vs := range spec {
		if slices.Contains(declared, vs.Variable) {
			active = append(active, vs)
		}
	}
	return active
}

func sortedMonths(present map[time.Month]bool) []time.Month {
	months := make([]time.Month, 0, len(present))
	for m := time.January; m <= time.December; m++ {
		if present[m] {
			months = append(months, m)
		}
	}
	return months
}
