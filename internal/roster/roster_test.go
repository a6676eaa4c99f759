package roster

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croftlab/site-weather-etl/internal/domain"
)

const (
	testSite = "Altus, OK"
	testLat  = "34.64"
	testLon  = "-99.33"
)

func parseRoster(t *testing.T, csv string) (Roster, []RowError) {
	t.Helper()
	roster, rowErrs, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	return roster, rowErrs
}

func TestParse_ValidRoster(t *testing.T) {
	csv := "site,year,lat,lon\n" +
		"\"" + testSite + "\",1980," + testLat + "," + testLon + "\n" +
		"\"Lubbock, TX\",1981,33.58,-101.85\n"

	roster, rowErrs := parseRoster(t, csv)

	require.Empty(t, rowErrs)
	require.Len(t, roster.Rows, 2)
	assert.Empty(t, roster.ExtraColumns)

	first := roster.Rows[0]
	assert.Equal(t, testSite, first.Site)
	assert.Equal(t, 1980, first.Year)
	assert.InDelta(t, 34.64, first.Lat, 1e-9)
	assert.InDelta(t, -99.33, first.Lon, 1e-9)
	assert.Empty(t, first.Extra)
}

func TestParse_CarriedColumnsPreserved(t *testing.T) {
	csv := "site,cultivar,year,lat,lon,yield\n" +
		"\"" + testSite + "\",TAM W-101,1980," + testLat + "," + testLon + ",2.41\n"

	roster, rowErrs := parseRoster(t, csv)

	require.Empty(t, rowErrs)
	require.Len(t, roster.Rows, 1)
	assert.Equal(t, []string{"cultivar", "yield"}, roster.ExtraColumns)
	assert.Equal(t, []string{"TAM W-101", "2.41"}, roster.Rows[0].Extra)
}

func TestParse_HeaderOrderIsFree(t *testing.T) {
	csv := "lon,lat,year,site\n" +
		testLon + "," + testLat + ",1980,\"" + testSite + "\"\n"

	roster, rowErrs := parseRoster(t, csv)

	require.Empty(t, rowErrs)
	require.Len(t, roster.Rows, 1)
	assert.Equal(t, testSite, roster.Rows[0].Site)
	assert.Equal(t, 1980, roster.Rows[0].Year)
}

func TestParse_MissingRequiredColumns(t *testing.T) {
	_, _, err := Parse(strings.NewReader("site,year\nA,1980\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lat")
	assert.Contains(t, err.Error(), "lon")
}

func TestParse_RejectsInvalidRows(t *testing.T) {
	tests := []struct {
		name   string
		row    string
		reason string
	}{
		{
			name:   "empty site",
			row:    ",1980," + testLat + "," + testLon,
			reason: "site is required",
		},
		{
			name:   "year before record",
			row:    "A,1979," + testLat + "," + testLon,
			reason: "predates the weather record",
		},
		{
			name:   "year not an integer",
			row:    "A,198O," + testLat + "," + testLon,
			reason: "not an integer",
		},
		{
			name:   "lat above coverage",
			row:    "A,1980,83.5," + testLon,
			reason: "outside coverage 14..83",
		},
		{
			name:   "lat below coverage",
			row:    "A,1980,13.99," + testLon,
			reason: "outside coverage 14..83",
		},
		{
			name:   "lon outside coverage",
			row:    "A,1980," + testLat + ",-51.9",
			reason: "outside coverage -180..-52",
		},
		{
			name:   "lon not a number",
			row:    "A,1980," + testLat + ",west",
			reason: "not a number",
		},
		{
			name:   "wrong field count",
			row:    "A,1980," + testLat,
			reason: "wrong number of fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv := "site,year,lat,lon\n" +
				tt.row + "\n" +
				"\"" + testSite + "\",1980," + testLat + "," + testLon + "\n"

			roster, rowErrs := parseRoster(t, csv)

			require.Len(t, rowErrs, 1, "bad row must be rejected")
			assert.Equal(t, 2, rowErrs[0].Line)
			assert.Contains(t, rowErrs[0].Reason, tt.reason)

			require.Len(t, roster.Rows, 1, "good row must survive")
			assert.Equal(t, testSite, roster.Rows[0].Site)
		})
	}
}

func TestParse_RejectsDuplicateSiteYear(t *testing.T) {
	csv := "site,year,lat,lon\n" +
		"\"" + testSite + "\",1980," + testLat + "," + testLon + "\n" +
		"\"" + testSite + "\",1981," + testLat + "," + testLon + "\n" +
		"\"" + testSite + "\",1980," + testLat + "," + testLon + "\n"

	roster, rowErrs := parseRoster(t, csv)

	require.Len(t, roster.Rows, 2)
	require.Len(t, rowErrs, 1)
	assert.Equal(t, 4, rowErrs[0].Line)
	assert.Contains(t, rowErrs[0].Reason, "duplicate of line 2")
}

func TestParse_RejectsFutureYear(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	csv := "site,year,lat,lon\n" +
		"A,2025," + testLat + "," + testLon + "\n" +
		"B,2024," + testLat + "," + testLon + "\n"

	roster, rowErrs := parseRoster(t, csv)

	require.Len(t, rowErrs, 1)
	assert.Contains(t, rowErrs[0].Reason, "year 2025 is in the future")
	require.Len(t, roster.Rows, 1)
	assert.Equal(t, "B", roster.Rows[0].Site)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load("testdata/does-not-exist.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open roster")
}
