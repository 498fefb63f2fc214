package tables

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// ExportWorkbook writes every table into one XLSX file, a sheet per table.
// Numeric cells are stored as numbers so the sheet sorts and charts properly.
func ExportWorkbook(path string, tabs []Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tabs {
		sheet := sheetName(t.Name)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return eris.Wrapf(err, "workbook: name sheet %s", sheet)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return eris.Wrapf(err, "workbook: add sheet %s", sheet)
		}

		header := make([]interface{}, len(t.Header))
		for j, h := range t.Header {
			header[j] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return eris.Wrapf(err, "workbook: header %s", sheet)
		}
		for r, row := range t.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return eris.Wrap(err, "workbook: cell name")
			}
			values := make([]interface{}, len(row))
			for j, v := range row {
				values[j] = cellValue(v)
			}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return eris.Wrapf(err, "workbook: row %d of %s", r+2, sheet)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "workbook: create dir for %s", path)
	}
	ext := filepath.Ext(path)
	tmp := strings.TrimSuffix(path, ext) + ".tmp" + ext
	if err := f.SaveAs(tmp); err != nil {
		return eris.Wrapf(err, "workbook: save %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "workbook: replace %s", path)
	}
	return nil
}

func sheetName(file string) string {
	name := strings.TrimSuffix(file, filepath.Ext(file))
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

// cellValue keeps identifiers as text: long digit runs and leading zeros
// would not survive a float.
func cellValue(v string) interface{} {
	if v == "" {
		return nil
	}
	if len(v) > 15 || (len(v) > 1 && v[0] == '0' && v[1] != '.') {
		return v
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !strings.ContainsAny(v, "eEnN") {
		return f
	}
	return v
}
