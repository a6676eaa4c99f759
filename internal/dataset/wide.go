package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/croftlab/site-weather-etl/internal/domain"
)

// WriteWide writes the monthly wide feature table to w. One row per
// site-year, feature cells formatted with the table's fixed precision,
// missing features left empty. Output is byte-deterministic for a given
// table.
func WriteWide(w io.Writer, tbl domain.WideTable) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, 4+len(tbl.ExtraColumns)+len(tbl.Schema))
	header = append(header, colSite, colYear, colLat, colLon)
	header = append(header, tbl.ExtraColumns...)
	for _, col := range tbl.Schema {
		header = append(header, col.Name())
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write wide header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range tbl.Rows {
		record = record[:0]
		record = append(record,
			row.Site,
			strconv.Itoa(row.Year),
			formatCoord(row.Lat),
			formatCoord(row.Lon),
		)
		record = append(record, row.Extra...)
		for _, fv := range row.Features {
			if fv.Valid {
				record = append(record, strconv.FormatFloat(fv.Value, 'f', tbl.Precision, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write wide row %s %d: %w", row.Site, row.Year, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteWideFile writes the wide table to path, creating parent
// directories as needed.
func WriteWideFile(path string, tbl domain.WideTable) error {
	return writeFile(path, func(w io.Writer) error { return WriteWide(w, tbl) })
}

// ReadWide reads a wide table written by WriteWide. Header columns that
// parse as <stat>_<var>_<Mon> form the schema; everything after the four
// fixed columns that does not is a carried roster column. The read table
// reports DefaultPrecision, since the text does not record it.
func ReadWide(r io.Reader) (domain.WideTable, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return domain.WideTable{}, fmt.Errorf("read wide header: %w", err)
	}
	if len(header) < 4 {
		return domain.WideTable{}, fmt.Errorf("wide header has %d columns, want at least 4", len(header))
	}
	for i, want := range []string{colSite, colYear, colLat, colLon} {
		if header[i] != want {
			return domain.WideTable{}, fmt.Errorf("wide header column %d is %q, want %q", i+1, header[i], want)
		}
	}

	tbl := domain.WideTable{Precision: domain.DefaultPrecision}
	var featureIdx []int
	var extraIdx []int
	for i := 4; i < len(header); i++ {
		if col, err := domain.ParseFeatureColumn(header[i]); err == nil {
			tbl.Schema = append(tbl.Schema, col)
			featureIdx = append(featureIdx, i)
		} else {
			tbl.ExtraColumns = append(tbl.ExtraColumns, header[i])
			extraIdx = append(extraIdx, i)
		}
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.WideTable{}, fmt.Errorf("read wide line %d: %w", line, err)
		}

		year, err := strconv.Atoi(record[1])
		if err != nil {
			return domain.WideTable{}, fmt.Errorf("wide line %d: year %q: %w", line, record[1], err)
		}
		lat, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return domain.WideTable{}, fmt.Errorf("wide line %d: lat %q: %w", line, record[2], err)
		}
		lon, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return domain.WideTable{}, fmt.Errorf("wide line %d: lon %q: %w", line, record[3], err)
		}

		row := domain.WideRow{
			SiteYear: domain.SiteYear{Site: record[0], Year: year, Lat: lat, Lon: lon},
			Features: make([]domain.FeatureValue, len(featureIdx)),
		}
		for _, i := range extraIdx {
			row.Extra = append(row.Extra, record[i])
		}
		for j, i := range featureIdx {
			cell := record[i]
			if cell == "" {
				continue
			}
			val, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return domain.WideTable{}, fmt.Errorf("wide line %d: %s %q: %w", line, header[i], cell, err)
			}
			row.Features[j] = domain.FeatureValue{Value: val, Valid: true}
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// ReadWideFile reads the wide table artifact at path.
func ReadWideFile(path string) (domain.WideTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.WideTable{}, fmt.Errorf("open wide table: %w", err)
	}
	defer f.Close()
	return ReadWide(f)
}
