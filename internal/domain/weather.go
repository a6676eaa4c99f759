package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Variable identifies one daily weather variable served by the
// point-weather API.
type Variable string

// Variables the API can serve. See the package documentation for units.
const (
	VarDayLength     Variable = "dayl"
	VarPrecipitation Variable = "prcp"
	VarRadiation     Variable = "srad"
	VarSnowWater     Variable = "swe"
	VarTempMax       Variable = "tmax"
	VarTempMin       Variable = "tmin"
	VarVaporPressure Variable = "vp"
)

// KnownVariables returns every servable variable in canonical order.
func KnownVariables() []Variable {
	return []Variable{
		VarDayLength,
		VarPrecipitation,
		VarRadiation,
		VarSnowWater,
		VarTempMax,
		VarTempMin,
		VarVaporPressure,
	}
}

// DefaultVariables returns the reference fetch set: every variable except
// snow water equivalent.
func DefaultVariables() []Variable {
	return []Variable{
		VarDayLength,
		VarPrecipitation,
		VarRadiation,
		VarTempMax,
		VarTempMin,
		VarVaporPressure,
	}
}

// ParseVariable validates a variable name from configuration or a file
// header.
func ParseVariable(s string) (Variable, error) {
	for _, v := range KnownVariables() {
		if s == string(v) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown weather variable %q", s)
}

// SiteYear identifies one location observed during one calendar year, the
// atomic unit of the input roster.
type SiteYear struct {
	Site string
	Year int
	Lat  float64
	Lon  float64

	// Extra holds carried response-variable values, aligned with the
	// roster's extra columns. Opaque strings: never parsed, never rounded.
	Extra []string
}

// Key returns the canonical "<site>|<year>" identity used for sink message
// keys and cache lookups.
func (sy SiteYear) Key() string {
	return fmt.Sprintf("%s|%d", sy.Site, sy.Year)
}

// DailyObservation is one day of weather at one site: the site-year
// identity, the day-of-year, its derived calendar date, and the measured
// values. An absent Values key is a missing measurement, distinct from a
// present zero.
type DailyObservation struct {
	SiteYear
	Yday   int
	Date   time.Time
	Values map[Variable]float64
}

// DailyDataset is the unified hand-off artifact between the fetch and
// aggregation stages: every daily observation across all site-years, plus
// the declared variable and carried-column sets that fix its schema.
type DailyDataset struct {
	Variables    []Variable
	ExtraColumns []string
	Rows         []DailyObservation
}

// Data-quality conditions detected when validating a fetched series.
var (
	ErrIncompleteYear  = errors.New("incomplete year")
	ErrDuplicateDay    = errors.New("duplicate day of year")
	ErrDayOutOfRange   = errors.New("day of year out of range")
	ErrMissingVariable = errors.New("missing variable")
)

// ValidateSeries checks a fetched site-year series against the fetch
// contract: exactly one observation per calendar day of the year, each
// carrying all requested variables. An API response that decodes cleanly
// but fails these checks is a data-quality failure for the whole
// site-year; a short series must never pass through as valid data.
func ValidateSeries(sy SiteYear, obs []DailyObservation, vars []Variable) error {
	want := DaysInYear(sy.Year)
	if len(obs) != want {
		return fmt.Errorf("%w: %s %d returned %d days, want %d",
			ErrIncompleteYear, sy.Site, sy.Year, len(obs), want)
	}

	seen := make([]bool, want+1)
	for _, o := range obs {
		if o.Yday < 1 || o.Yday > want {
			return fmt.Errorf("%w: yday %d outside 1..%d for %s %d",
				ErrDayOutOfRange, o.Yday, want, sy.Site, sy.Year)
		}
		if seen[o.Yday] {
			return fmt.Errorf("%w: yday %d appears twice for %s %d",
				ErrDuplicateDay, o.Yday, sy.Site, sy.Year)
		}
		seen[o.Yday] = true

		for _, v := range vars {
			if _, ok := o.Values[v]; !ok {
				return fmt.Errorf("%w: %s absent on yday %d for %s %d",
					ErrMissingVariable, v, o.Yday, sy.Site, sy.Year)
			}
		}
	}
	return nil
}

// FetchError reports a site-year the fetch stage could not complete. It
// records how many attempts were made and whether the failure was
// permanent, so run reports can tell an exhausted retry budget from a
// request that was never worth repeating. The wrapped error keeps any
// data-quality sentinel reachable through errors.Is.
type FetchError struct {
	Site      string
	Year      int
	Attempts  int
	Permanent bool
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %d after %d attempt(s): %v", e.Site, e.Year, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SortObservations orders rows by site, then year, then day of year: the
// deterministic concatenation order of the unified dataset, independent of
// fetch completion order.
func SortObservations(rows []DailyObservation) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Site != rows[j].Site {
			return rows[i].Site < rows[j].Site
		}
		if rows[i].Year != rows[j].Year {
			return rows[i].Year < rows[j].Year
		}
		return rows[i].Yday < rows[j].Yday
	})
}
