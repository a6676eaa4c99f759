package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeObs(site string, year, yday int, values map[Variable]float64) DailyObservation {
	return DailyObservation{
		SiteYear: SiteYear{Site: site, Year: year, Lat: testLat, Lon: testLon},
		Yday:     yday,
		Values:   values,
	}
}

func featureByName(t *testing.T, table WideTable, row WideRow, name string) FeatureValue {
	t.Helper()
	for i, col := range table.Schema {
		if col.Name() == name {
			return row.Features[i]
		}
	}
	t.Fatalf("column %q not in schema", name)
	return FeatureValue{}
}

func TestDefaultAggregation(t *testing.T) {
	spec := DefaultAggregation()

	require.Len(t, spec, len(KnownVariables()), "every servable variable has an assignment")

	stats := make(map[Variable]Statistic, len(spec))
	for _, vs := range spec {
		stats[vs.Variable] = vs.Statistic
	}
	assert.Equal(t, StatSum, stats[VarPrecipitation], "precipitation accumulates")
	assert.Equal(t, StatMean, stats[VarTempMax])
	assert.Equal(t, StatMean, stats[VarTempMin])
	assert.Equal(t, StatMean, stats[VarDayLength])
	assert.Equal(t, StatMean, stats[VarRadiation])
	assert.Equal(t, StatMean, stats[VarVaporPressure])
	assert.Equal(t, StatMean, stats[VarSnowWater])
}

func TestRoundTo(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		precision int
		expected  float64
	}{
		{"round down", 1.24, 1, 1.2},
		{"round half up", 1.25, 1, 1.3},
		{"negative half away from zero", -1.25, 1, -1.3},
		{"already exact", 9.3, 1, 9.3},
		{"two decimals", 3.14159, 2, 3.14},
		{"zero decimals", 16.5, 0, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, RoundTo(tt.value, tt.precision), 1e-9)
		})
	}
}

func TestFeatureColumnName(t *testing.T) {
	assert.Equal(t, "mean_tmax_Jan", FeatureColumn{VarTempMax, StatMean, time.January}.Name())
	assert.Equal(t, "sum_prcp_Dec", FeatureColumn{VarPrecipitation, StatSum, time.December}.Name())
}

func TestParseFeatureColumn(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		want := FeatureColumn{VarVaporPressure, StatMean, time.August}
		got, err := ParseFeatureColumn(want.Name())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	tests := []struct {
		name   string
		column string
	}{
		{"too few parts", "mean_tmax"},
		{"unknown variable", "mean_humidity_Jan"},
		{"unknown month", "mean_tmax_Januar"},
		{"unknown statistic", "median_tmax_Jan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFeatureColumn(tt.column)
			assert.Error(t, err)
		})
	}
}

func TestBuildSchema(t *testing.T) {
	spec := []VariableStatistic{
		{VarTempMax, StatMean},
		{VarPrecipitation, StatSum},
	}
	months := []time.Month{time.January, time.February}

	schema := BuildSchema(spec, months)

	require.Len(t, schema, 4)
	assert.Equal(t, "mean_tmax_Jan", schema[0].Name())
	assert.Equal(t, "mean_tmax_Feb", schema[1].Name())
	assert.Equal(t, "sum_prcp_Jan", schema[2].Name())
	assert.Equal(t, "sum_prcp_Feb", schema[3].Name())
}

func TestAggregate_JanuaryMeansAndSums(t *testing.T) {
	// January 1980 at Altus: tmax climbs 1..31 so the mean is 16.0;
	// steady 0.3 mm/day of rain sums to 9.3.
	rows := make([]DailyObservation, 0, 31)
	for yday := 1; yday <= 31; yday++ {
		rows = append(rows, makeObs(testSite, 1980, yday, map[Variable]float64{
			VarTempMax:       float64(yday),
			VarPrecipitation: 0.3,
		}))
	}
	ds := DailyDataset{
		Variables: []Variable{VarTempMax, VarPrecipitation},
		Rows:      rows,
	}

	table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs)
	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, testSite, row.Site)
	assert.Equal(t, 1980, row.Year)
	assert.Equal(t, testLat, row.Lat)
	assert.Equal(t, testLon, row.Lon)

	tmax := featureByName(t, table, row, "mean_tmax_Jan")
	require.True(t, tmax.Valid)
	assert.InDelta(t, 16.0, tmax.Value, 1e-9)

	prcp := featureByName(t, table, row, "sum_prcp_Jan")
	require.True(t, prcp.Valid)
	assert.InDelta(t, 9.3, prcp.Value, 1e-9)
}

func TestAggregate_ColumnCountInvariant(t *testing.T) {
	// Six summarized variables over all twelve months: 72 derived columns.
	sy := testSiteYear(1981)
	ds := DailyDataset{
		Variables: DefaultVariables(),
		Rows:      fullSeries(sy, DefaultVariables()),
	}

	table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs)
	assert.Len(t, table.Schema, 6*12)
	require.Len(t, table.Rows, 1)
	for _, fv := range table.Rows[0].Features {
		assert.True(t, fv.Valid, "full year leaves no empty bucket")
	}
}

func TestAggregate_UndeclaredVariableContributesNoColumns(t *testing.T) {
	ds := DailyDataset{
		Variables: []Variable{VarTempMax},
		Rows: []DailyObservation{
			makeObs(testSite, 1981, 1, map[Variable]float64{VarTempMax: 5}),
		},
	}

	table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs)
	require.Len(t, table.Schema, 1)
	assert.Equal(t, "mean_tmax_Jan", table.Schema[0].Name())
}

func TestAggregate_EmptyMonthIsMissingNotZero(t *testing.T) {
	// Site A has January and March data; site B has January only.
	rows := []DailyObservation{
		makeObs("A", 1981, 5, map[Variable]float64{VarPrecipitation: 1.5}),
		makeObs("A", 1981, 70, map[Variable]float64{VarPrecipitation: 2.0}),
		makeObs("B", 1981, 5, map[Variable]float64{VarPrecipitation: 0.0}),
	}
	ds := DailyDataset{Variables: []Variable{VarPrecipitation}, Rows: rows}

	table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs)
	require.Len(t, table.Rows, 2)
	require.Len(t, table.Schema, 2, "January and March present")

	rowA, rowB := table.Rows[0], table.Rows[1]
	require.Equal(t, "A", rowA.Site)
	require.Equal(t, "B", rowB.Site)

	assert.True(t, featureByName(t, table, rowA, "sum_prcp_Mar").Valid)

	marB := featureByName(t, table, rowB, "sum_prcp_Mar")
	assert.False(t, marB.Valid, "no March observations must stay missing, not zero")

	janB := featureByName(t, table, rowB, "sum_prcp_Jan")
	require.True(t, janB.Valid, "a present zero is valid data")
	assert.Equal(t, 0.0, janB.Value)
}

func TestAggregate_MissingDailyValueIsNotZero(t *testing.T) {
	// prcp is declared but absent from every January row: the bucket has
	// rows yet zero observations for prcp, so the sum stays missing.
	rows := []DailyObservation{
		makeObs(testSite, 1981, 1, map[Variable]float64{VarTempMax: 4}),
		makeObs(testSite, 1981, 2, map[Variable]float64{VarTempMax: 6}),
	}
	ds := DailyDataset{Variables: []Variable{VarTempMax, VarPrecipitation}, Rows: rows}

	table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs)
	require.Len(t, table.Rows, 1)

	assert.False(t, featureByName(t, table, table.Rows[0], "sum_prcp_Jan").Valid)
	tmax := featureByName(t, table, table.Rows[0], "mean_tmax_Jan")
	require.True(t, tmax.Valid)
	assert.InDelta(t, 5.0, tmax.Value, 1e-9)
}

func TestAggregate_LeapDayLandsInDecember(t *testing.T) {
	ds := DailyDataset{
		Variables: []Variable{VarTempMax},
		Rows: []DailyObservation{
			makeObs(testSite, 1980, 366, map[Variable]float64{VarTempMax: -2}),
		},
	}

	table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs)
	require.Len(t, table.Schema, 1)
	assert.Equal(t, "mean_tmax_Dec", table.Schema[0].Name())
}

func TestAggregate_RowsSortedBySiteThenYear(t *testing.T) {
	rows := []DailyObservation{
		makeObs("B", 1990, 1, map[Variable]float64{VarTempMax: 1}),
		makeObs("A", 1991, 1, map[Variable]float64{VarTempMax: 1}),
		makeObs("A", 1990, 1, map[Variable]float64{VarTempMax: 1}),
	}
	ds := DailyDataset{Variables: []Variable{VarTempMax}, Rows: rows}

	table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "A", table.Rows[0].Site)
	assert.Equal(t, 1990, table.Rows[0].Year)
	assert.Equal(t, "A", table.Rows[1].Site)
	assert.Equal(t, 1991, table.Rows[1].Year)
	assert.Equal(t, "B", table.Rows[2].Site)
}

func TestAggregate_RejectsBadRecords(t *testing.T) {
	t.Run("yday out of range", func(t *testing.T) {
		ds := DailyDataset{
			Variables: []Variable{VarTempMax},
			Rows: []DailyObservation{
				makeObs(testSite, 1981, 1, map[Variable]float64{VarTempMax: 4}),
				makeObs(testSite, 1981, 366, map[Variable]float64{VarTempMax: 99}),
			},
		}

		table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

		require.Len(t, errs, 1)
		assert.Equal(t, 366, errs[0].Yday)
		require.Len(t, table.Rows, 1, "remaining records still produce the row")
		tmax := featureByName(t, table, table.Rows[0], "mean_tmax_Jan")
		assert.InDelta(t, 4.0, tmax.Value, 1e-9, "rejected record contributes nothing")
	})

	t.Run("date disagrees with yday", func(t *testing.T) {
		bad := makeObs(testSite, 1981, 1, map[Variable]float64{VarTempMax: 4})
		bad.Date = time.Date(1981, 1, 2, 0, 0, 0, 0, time.UTC)
		ds := DailyDataset{Variables: []Variable{VarTempMax}, Rows: []DailyObservation{bad}}

		table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Reason, "disagrees")
		assert.Empty(t, table.Rows, "the site-year's only record was rejected")
	})

	t.Run("identifier disagreement", func(t *testing.T) {
		first := makeObs(testSite, 1981, 1, map[Variable]float64{VarTempMax: 4})
		second := makeObs(testSite, 1981, 2, map[Variable]float64{VarTempMax: 6})
		second.Lat = testLat + 1
		ds := DailyDataset{Variables: []Variable{VarTempMax}, Rows: []DailyObservation{first, second}}

		table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

		require.Len(t, errs, 1)
		assert.Equal(t, 2, errs[0].Yday)
		require.Len(t, table.Rows, 1)
		assert.Equal(t, testLat, table.Rows[0].Lat, "first-seen identity wins")
		tmax := featureByName(t, table, table.Rows[0], "mean_tmax_Jan")
		assert.InDelta(t, 4.0, tmax.Value, 1e-9)
	})
}

func TestAggregate_CarriedExtrasPreserved(t *testing.T) {
	obs := makeObs(testSite, 1981, 1, map[Variable]float64{VarTempMax: 4})
	obs.Extra = []string{"29.85", "strong"}
	ds := DailyDataset{
		Variables:    []Variable{VarTempMax},
		ExtraColumns: []string{"fiber_strength", "grade"},
		Rows:         []DailyObservation{obs},
	}

	table, errs := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs)
	assert.Equal(t, []string{"fiber_strength", "grade"}, table.ExtraColumns)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{"29.85", "strong"}, table.Rows[0].Extra,
		"carried values pass through untouched")
}

func TestAggregate_Deterministic(t *testing.T) {
	sy := testSiteYear(1980)
	ds := DailyDataset{
		Variables: DefaultVariables(),
		Rows:      fullSeries(sy, DefaultVariables()),
	}

	first, errs1 := Aggregate(ds, DefaultAggregation(), DefaultPrecision)
	second, errs2 := Aggregate(ds, DefaultAggregation(), DefaultPrecision)

	require.Empty(t, errs1)
	require.Empty(t, errs2)
	assert.Empty(t, cmp.Diff(first, second))
}

func TestAggregate_PrecisionApplied(t *testing.T) {
	ds := DailyDataset{
		Variables: []Variable{VarTempMax},
		Rows: []DailyObservation{
			makeObs(testSite, 1981, 1, map[Variable]float64{VarTempMax: 1}),
			makeObs(testSite, 1981, 2, map[Variable]float64{VarTempMax: 2}),
			makeObs(testSite, 1981, 3, map[Variable]float64{VarTempMax: 2}),
		},
	}

	table, _ := Aggregate(ds, DefaultAggregation(), 2)

	require.Len(t, table.Rows, 1)
	got := featureByName(t, table, table.Rows[0], "mean_tmax_Jan")
	require.True(t, got.Valid)
	assert.InDelta(t, 1.67, got.Value, 1e-9)
	assert.Equal(t, 2, table.Precision)
}
