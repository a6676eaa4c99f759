// Package domain models daily point-weather data and its monthly
// feature aggregation.
//
// # Data Source
//
// Daily observations come from a Daymet-style single-pixel service: a point
// query for one coordinate and one calendar year returns, per requested
// variable, one value for every day of that year. Responses are columnar
// (parallel arrays indexed by day); the fetch adapter flattens them into
// one [DailyObservation] per day.
//
// # Calendar Conventions
//
// Days are addressed by day-of-year (yday):
//
//	yday 1   = January 1
//	yday 365 = December 31 (non-leap years)
//	yday 366 = December 31 (leap years)
//
// A complete site-year therefore has exactly [DaysInYear] observations, and
// the calendar date is always derivable from (year, yday) via [DateForYday].
// A record that carries a date disagreeing with its yday is corrupt and is
// excluded from aggregation, not repaired.
//
// # Variables and Units
//
//	dayl  day length                 s/day
//	prcp  precipitation              mm/day
//	srad  shortwave radiation        W/m²
//	swe   snow water equivalent      kg/m²
//	tmax  maximum air temperature    °C
//	tmin  minimum air temperature    °C
//	vp    water vapor pressure       Pa
//
// The reference fetch set is everything except swe; swe is available for
// snow-focused work via configuration.
//
// # Aggregation Conventions
//
// Monthly features are computed from an explicit variable-to-statistic
// table ([DefaultAggregation]): intensity-type variables (dayl, srad, tmax,
// tmin, vp, swe) take the arithmetic mean of the month's daily values;
// the accumulation-type variable prcp takes the sum. The table is static
// configuration; statistics are never inferred from variable names.
//
// Wide-table columns are named {statistic}_{variable}_{Mon}, e.g.
// mean_tmax_Jan and sum_prcp_Jan, built through [FeatureColumn] rather than
// ad-hoc string concatenation.
//
// # Missing Values
//
// A month bucket with zero observations for a variable produces a missing
// cell, never a zero: the sum of no observations is unknown, not 0.0.
// Missing daily values are likewise explicit (an absent key in
// [DailyObservation].Values), so a short month aggregates over the days
// actually present.
//
// # Rounding
//
// Derived feature columns are rounded to [DefaultPrecision] decimal places
// for output stability. Identifier columns and carried response variables
// are never rounded; carried values are opaque strings end to end.
package domain
