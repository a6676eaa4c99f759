package dataset

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/croftlab/site-weather-etl/internal/domain"
)

const featureSheet = "Monthly Features"

// WriteWideXLSX renders the wide feature table as a single-sheet XLSX
// workbook. The sheet mirrors the CSV artifact column for column; missing
// features are blank cells.
func WriteWideXLSX(w io.Writer, tbl domain.WideTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(featureSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	header := make([]string, 0, 4+len(tbl.ExtraColumns)+len(tbl.Schema))
	header = append(header, colSite, colYear, colLat, colLon)
	header = append(header, tbl.ExtraColumns...)
	for _, col := range tbl.Schema {
		header = append(header, col.Name())
	}
	for i, name := range header {
		f.SetCellValue(featureSheet, cellName(i+1, 1), name)
	}

	for rowIdx, row := range tbl.Rows {
		r := rowIdx + 2
		col := 1

		f.SetCellValue(featureSheet, cellName(col, r), row.Site)
		col++
		f.SetCellValue(featureSheet, cellName(col, r), row.Year)
		col++
		f.SetCellValue(featureSheet, cellName(col, r), row.Lat)
		col++
		f.SetCellValue(featureSheet, cellName(col, r), row.Lon)
		col++
		for _, extra := range row.Extra {
			f.SetCellValue(featureSheet, cellName(col, r), extra)
			col++
		}
		for _, fv := range row.Features {
			if fv.Valid {
				f.SetCellValue(featureSheet, cellName(col, r), fv.Value)
			}
			col++
		}
	}

	f.SetColWidth(featureSheet, "A", "A", 24)
	if last, err := excelize.ColumnNumberToName(len(header)); err == nil {
		f.SetColWidth(featureSheet, "B", last, 14)
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("render workbook: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteWideXLSXFile writes the workbook to path, creating parent
// directories as needed.
func WriteWideXLSXFile(path string, tbl domain.WideTable) error {
	return writeFile(path, func(w io.Writer) error { return WriteWideXLSX(w, tbl) })
}

func cellName(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}
