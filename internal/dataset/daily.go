// Package dataset reads and writes the pipeline's file artifacts: the
// unified daily dataset produced by the fetch stage and the monthly wide
// feature table produced by the features stage.
//
// Both artifacts are CSV. Column layout is fixed by the writers here:
//
//	daily: site, year, lat, lon, <carried...>, yday, date, <variables...>
//	wide:  site, year, lat, lon, <carried...>, <stat>_<var>_<Mon>...
//
// A missing value is an empty cell, never a zero. Values round-trip
// exactly: daily cells use the shortest decimal text that re-parses to
// the same float64, wide cells use the table's fixed precision.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/croftlab/site-weather-etl/internal/domain"
)

const (
	colSite = "site"
	colYear = "year"
	colLat  = "lat"
	colLon  = "lon"
	colYday = "yday"
	colDate = "date"
)

// WriteDaily writes the unified daily dataset to w in row order. Callers
// sort rows first when they need a canonical artifact.
func WriteDaily(w io.Writer, ds domain.DailyDataset) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, 6+len(ds.ExtraColumns)+len(ds.Variables))
	header = append(header, colSite, colYear, colLat, colLon)
	header = append(header, ds.ExtraColumns...)
	header = append(header, colYday, colDate)
	for _, v := range ds.Variables {
		header = append(header, string(v))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write daily header: %w", err)
	}

	record := make([]string, len(header))
	for _, obs := range ds.Rows {
		record = record[:0]
		record = append(record,
			obs.Site,
			strconv.Itoa(obs.Year),
			formatCoord(obs.Lat),
			formatCoord(obs.Lon),
		)
		record = append(record, obs.Extra...)
		record = append(record, strconv.Itoa(obs.Yday), obs.Date.Format(domain.DateLayout))
		for _, v := range ds.Variables {
			if val, ok := obs.Values[v]; ok {
				record = append(record, strconv.FormatFloat(val, 'f', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write daily row %s %d yday %d: %w", obs.Site, obs.Year, obs.Yday, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteDailyFile writes the daily dataset to path, creating parent
// directories as needed.
func WriteDailyFile(path string, ds domain.DailyDataset) error {
	return writeFile(path, func(w io.Writer) error { return WriteDaily(w, ds) })
}

// ReadDaily reads a daily dataset written by WriteDaily. Columns between
// lon and yday are the carried roster columns; columns after date are the
// weather variables.
func ReadDaily(r io.Reader) (domain.DailyDataset, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return domain.DailyDataset{}, fmt.Errorf("read daily header: %w", err)
	}
	layout, err := parseDailyHeader(header)
	if err != nil {
		return domain.DailyDataset{}, err
	}

	ds := domain.DailyDataset{Variables: layout.variables, ExtraColumns: layout.extras}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.DailyDataset{}, fmt.Errorf("read daily line %d: %w", line, err)
		}
		obs, err := layout.parseRow(record)
		if err != nil {
			return domain.DailyDataset{}, fmt.Errorf("daily line %d: %w", line, err)
		}
		ds.Rows = append(ds.Rows, obs)
	}
	return ds, nil
}

// ReadDailyFile reads the daily dataset artifact at path.
func ReadDailyFile(path string) (domain.DailyDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.DailyDataset{}, fmt.Errorf("open daily dataset: %w", err)
	}
	defer f.Close()
	return ReadDaily(f)
}

type dailyLayout struct {
	extras    []string
	variables []domain.Variable
	ydayIdx   int
	dateIdx   int
}

func parseDailyHeader(header []string) (dailyLayout, error) {
	if len(header) < 6 {
		return dailyLayout{}, fmt.Errorf("daily header has %d columns, want at least 6", len(header))
	}
	for i, want := range []string{colSite, colYear, colLat, colLon} {
		if header[i] != want {
			return dailyLayout{}, fmt.Errorf("daily header column %d is %q, want %q", i+1, header[i], want)
		}
	}

	layout := dailyLayout{ydayIdx: -1}
	for i := 4; i < len(header); i++ {
		if header[i] == colYday {
			layout.ydayIdx = i
			break
		}
		layout.extras = append(layout.extras, header[i])
	}
	if layout.ydayIdx < 0 || layout.ydayIdx+1 >= len(header) || header[layout.ydayIdx+1] != colDate {
		return dailyLayout{}, fmt.Errorf("daily header missing yday,date columns")
	}
	layout.dateIdx = layout.ydayIdx + 1

	for i := layout.dateIdx + 1; i < len(header); i++ {
		v, err := domain.ParseVariable(header[i])
		if err != nil {
			return dailyLayout{}, fmt.Errorf("daily header: %w", err)
		}
		layout.variables = append(layout.variables, v)
	}
	if len(layout.variables) == 0 {
		return dailyLayout{}, fmt.Errorf("daily header declares no weather variables")
	}
	return layout, nil
}

func (l dailyLayout) parseRow(record []string) (domain.DailyObservation, error) {
	year, err := strconv.Atoi(record[1])
	if err != nil {
		return domain.DailyObservation{}, fmt.Errorf("year %q: %w", record[1], err)
	}
	lat, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return domain.DailyObservation{}, fmt.Errorf("lat %q: %w", record[2], err)
	}
	lon, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return domain.DailyObservation{}, fmt.Errorf("lon %q: %w", record[3], err)
	}
	yday, err := strconv.Atoi(record[l.ydayIdx])
	if err != nil {
		return domain.DailyObservation{}, fmt.Errorf("yday %q: %w", record[l.ydayIdx], err)
	}
	date, err := time.Parse(domain.DateLayout, record[l.dateIdx])
	if err != nil {
		return domain.DailyObservation{}, fmt.Errorf("date %q: %w", record[l.dateIdx], err)
	}

	obs := domain.DailyObservation{
		SiteYear: domain.SiteYear{Site: record[0], Year: year, Lat: lat, Lon: lon},
		Yday:     yday,
		Date:     date,
		Values:   make(map[domain.Variable]float64, len(l.variables)),
	}
	if len(l.extras) > 0 {
		obs.Extra = append(obs.Extra, record[4:4+len(l.extras)]...)
	}
	for i, v := range l.variables {
		cell := record[l.dateIdx+1+i]
		if cell == "" {
			continue
		}
		val, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return domain.DailyObservation{}, fmt.Errorf("%s %q: %w", v, cell, err)
		}
		obs.Values[v] = val
	}
	return obs, nil
}

// formatCoord renders a coordinate with the shortest text that re-parses
// to the same float64, so the artifact round-trips exactly.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
