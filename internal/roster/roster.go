// Package roster loads and validates the site-year input roster.
//
// The roster is a CSV with header-addressed required columns site, year,
// lat, and lon; every remaining column is a carried response variable,
// preserved verbatim through both pipeline stages. Malformed rows are
// input-validation failures: each is rejected individually and reported,
// and processing continues with the remaining rows.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/croftlab/site-weather-etl/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Roster is the validated input: the site-years to fetch and the names of
// the carried response-variable columns, in file order.
type Roster struct {
	Rows         []domain.SiteYear
	ExtraColumns []string
}

// RowError reports one roster row dropped by input validation.
// Line is 1-based; the header is line 1.
type RowError struct {
	Line   int
	Reason string
}

// rosterRow carries the validation bounds of the upstream weather product:
// continental North America, 1980 to present.
type rosterRow struct {
	Site string  `validate:"required"`
	Year int     `validate:"gte=1980"`
	Lat  float64 `validate:"gte=14,lte=83"`
	Lon  float64 `validate:"gte=-180,lte=-52"`
}

var validate = validator.New()

// Load reads the roster file. Individually invalid rows come back as
// RowErrors; only an unreadable or structurally unusable file is an error.
func Load(path string) (Roster, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return Roster{}, nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a roster from r. The header must name site, year, lat, and
// lon (lowercase); column order is free. Duplicate (site, year) rows are
// rejected after the first occurrence.
func Parse(r io.Reader) (Roster, []RowError, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return Roster{}, nil, fmt.Errorf("read roster header: %w", err)
	}

	cols, extras, err := indexHeader(header)
	if err != nil {
		return Roster{}, nil, err
	}

	roster := Roster{ExtraColumns: extras.names}
	var rowErrs []RowError
	firstSeen := make(map[string]int)

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: err.Error()})
			continue
		}

		sy, reason := parseRow(record, cols, extras)
		if reason != "" {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: reason})
			continue
		}
		if dup, ok := firstSeen[sy.Key()]; ok {
			rowErrs = append(rowErrs, RowError{
				Line:   line,
				Reason: fmt.Sprintf("duplicate of line %d for %s %d", dup, sy.Site, sy.Year),
			})
			continue
		}

		firstSeen[sy.Key()] = line
		roster.Rows = append(roster.Rows, sy)
	}

	return roster, rowErrs, nil
}

type columnIndex struct {
	site, year, lat, lon int
}

type extraIndex struct {
	names     []string
	positions []int
}

func indexHeader(header []string) (columnIndex, extraIndex, error) {
	cols := columnIndex{site: -1, year: -1, lat: -1, lon: -1}
	var extras extraIndex

	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "site":
			cols.site = i
		case "year":
			cols.year = i
		case "lat":
			cols.lat = i
		case "lon":
			cols.lon = i
		default:
			extras.names = append(extras.names, strings.TrimSpace(name))
			extras.positions = append(extras.positions, i)
		}
	}

	var missing []string
	for name, idx := range map[string]int{"site": cols.site, "year": cols.year, "lat": cols.lat, "lon": cols.lon} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return columnIndex{}, extraIndex{}, fmt.Errorf("roster header missing required column(s): %s", strings.Join(missing, ", "))
	}
	return cols, extras, nil
}

// parseRow converts one CSV record to a SiteYear. A non-empty reason means
// the row is rejected.
func parseRow(record []string, cols columnIndex, extras extraIndex) (domain.SiteYear, string) {
	year, err := strconv.Atoi(strings.TrimSpace(record[cols.year]))
	if err != nil {
		return domain.SiteYear{}, fmt.Sprintf("year %q is not an integer", record[cols.year])
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(record[cols.lat]), 64)
	if err != nil {
		return domain.SiteYear{}, fmt.Sprintf("lat %q is not a number", record[cols.lat])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[cols.lon]), 64)
	if err != nil {
		return domain.SiteYear{}, fmt.Sprintf("lon %q is not a number", record[cols.lon])
	}

	row := rosterRow{
		Site: strings.TrimSpace(record[cols.site]),
		Year: year,
		Lat:  lat,
		Lon:  lon,
	}
	if reason := validateRow(row); reason != "" {
		return domain.SiteYear{}, reason
	}

	sy := domain.SiteYear{Site: row.Site, Year: row.Year, Lat: row.Lat, Lon: row.Lon}
	if len(extras.positions) > 0 {
		sy.Extra = make([]string, len(extras.positions))
		for i, pos := range extras.positions {
			sy.Extra[i] = record[pos]
		}
	}
	return sy, ""
}

func validateRow(row rosterRow) string {
	if err := validate.Struct(row); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return describeFieldError(row, verrs[0])
		}
		return err.Error()
	}

	// Validator tags cover static bounds; the upper year bound moves.
	if now := domain.Now().Year(); row.Year > now {
		return fmt.Sprintf("year %d is in the future", row.Year)
	}
	return ""
}

func describeFieldError(row rosterRow, fe validator.FieldError) string {
	switch fe.Field() {
	case "Site":
		return "site is required"
	case "Year":
		return fmt.Sprintf("year %d predates the weather record (1980)", row.Year)
	case "Lat":
		return fmt.Sprintf("lat %v outside coverage 14..83", row.Lat)
	case "Lon":
		return fmt.Sprintf("lon %v outside coverage -180..-52", row.Lon)
	default:
		return fe.Error()
	}
}
