package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSite = "Altus, OK"
	testLat  = 34.64
	testLon  = -99.33
)

func testSiteYear(year int) SiteYear {
	return SiteYear{Site: testSite, Year: year, Lat: testLat, Lon: testLon}
}

// fullSeries builds one observation per day of the year, every variable
// present with a value derived from the day number.
func fullSeries(sy SiteYear, vars []Variable) []DailyObservation {
	days := DaysInYear(sy.Year)
	obs := make([]DailyObservation, 0, days)
	for yday := 1; yday <= days; yday++ {
		values := make(map[Variable]float64, len(vars))
		for i, v := range vars {
			values[v] = float64(yday) + float64(i)/10
		}
		date, _ := DateForYday(sy.Year, yday)
		obs = append(obs, DailyObservation{
			SiteYear: sy,
			Yday:     yday,
			Date:     date,
			Values:   values,
		})
	}
	return obs
}

func TestParseVariable(t *testing.T) {
	for _, v := range KnownVariables() {
		parsed, err := ParseVariable(string(v))
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}

	_, err := ParseVariable("humidity")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "humidity")
}

func TestDefaultVariables(t *testing.T) {
	vars := DefaultVariables()

	assert.Len(t, vars, 6)
	assert.NotContains(t, vars, VarSnowWater, "swe is opt-in, not part of the reference set")
	assert.Contains(t, vars, VarTempMax)
	assert.Contains(t, vars, VarPrecipitation)
}

func TestSiteYearKey(t *testing.T) {
	assert.Equal(t, "Altus, OK|1980", testSiteYear(1980).Key())
}

func TestValidateSeries(t *testing.T) {
	vars := DefaultVariables()

	t.Run("complete non-leap year", func(t *testing.T) {
		sy := testSiteYear(1981)
		obs := fullSeries(sy, vars)

		require.Len(t, obs, 365)
		assert.NoError(t, ValidateSeries(sy, obs, vars))
	})

	t.Run("complete leap year", func(t *testing.T) {
		sy := testSiteYear(1980)
		obs := fullSeries(sy, vars)

		require.Len(t, obs, 366)
		assert.NoError(t, ValidateSeries(sy, obs, vars))
	})

	t.Run("short year", func(t *testing.T) {
		sy := testSiteYear(1981)
		obs := fullSeries(sy, vars)[:300]

		err := ValidateSeries(sy, obs, vars)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIncompleteYear)
		assert.Contains(t, err.Error(), "300")
	})

	t.Run("duplicate day", func(t *testing.T) {
		sy := testSiteYear(1981)
		obs := fullSeries(sy, vars)
		obs[1].Yday = 1 // day 2 repeated as day 1

		err := ValidateSeries(sy, obs, vars)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateDay)
	})

	t.Run("day out of range", func(t *testing.T) {
		sy := testSiteYear(1981)
		obs := fullSeries(sy, vars)
		obs[364].Yday = 366 // non-leap year has no day 366

		err := ValidateSeries(sy, obs, vars)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDayOutOfRange)
	})

	t.Run("missing variable", func(t *testing.T) {
		sy := testSiteYear(1981)
		obs := fullSeries(sy, vars)
		delete(obs[100].Values, VarVaporPressure)

		err := ValidateSeries(sy, obs, vars)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingVariable)
		assert.Contains(t, err.Error(), "vp")
	})

	t.Run("extra unrequested variable is fine", func(t *testing.T) {
		sy := testSiteYear(1981)
		obs := fullSeries(sy, vars)
		obs[0].Values[VarSnowWater] = 0

		assert.NoError(t, ValidateSeries(sy, obs, vars))
	})
}

func TestSortObservations(t *testing.T) {
	rows := []DailyObservation{
		{SiteYear: SiteYear{Site: "B", Year: 1990}, Yday: 1},
		{SiteYear: SiteYear{Site: "A", Year: 1991}, Yday: 2},
		{SiteYear: SiteYear{Site: "A", Year: 1990}, Yday: 2},
		{SiteYear: SiteYear{Site: "A", Year: 1990}, Yday: 1},
	}

	SortObservations(rows)

	assert.Equal(t, "A", rows[0].Site)
	assert.Equal(t, 1990, rows[0].Year)
	assert.Equal(t, 1, rows[0].Yday)
	assert.Equal(t, 2, rows[1].Yday)
	assert.Equal(t, 1991, rows[2].Year)
	assert.Equal(t, "B", rows[3].Site)
}
