package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used in dataset artifacts.
const DateLayout = "2006-01-02"

// IsLeapYear reports whether year has 366 days in the Gregorian calendar.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInYear returns 366 for leap years, 365 otherwise.
func DaysInYear(year int) int {
	if IsLeapYear(year) {
		return 366
	}
	return 365
}

// DateForYday converts (year, day-of-year) to a UTC calendar date.
// Day 1 is January 1; day 366 of a leap year is December 31.
func DateForYday(year, yday int) (time.Time, error) {
	if yday < 1 || yday > DaysInYear(year) {
		return time.Time{}, fmt.Errorf("%w: yday %d in year %d", ErrDayOutOfRange, yday, year)
	}
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return jan1.AddDate(0, 0, yday-1), nil
}

// MonthLabel returns the three-letter English abbreviation used in
// wide-table column names, e.g. "Jan".
func MonthLabel(m time.Month) string {
	return m.String()[:3]
}

// ParseMonthLabel inverts MonthLabel when reading a wide-table header back.
func ParseMonthLabel(s string) (time.Month, error) {
	for m := time.January; m <= time.December; m++ {
		if MonthLabel(m) == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown month label %q", s)
}
