// Package tables persists the derived tables as CSV files and an XLSX workbook
// and reads them back for the API.
package tables

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"sales-insights-go/internal/aggregator"
	"sales-insights-go/internal/types"
)

// Table is one encoded table ready to be written.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

func EncodeFlat(rows []types.FlatRow) Table {
	out := Table{Name: FlatFile, Header: FlatColumns}
	for _, r := range rows {
		out.Rows = append(out.Rows, flatValues(r))
	}
	return out
}

// Encode renders every table of a run, flat table first.
func Encode(t aggregator.Tables) []Table {
	sellers := Table{Name: SellerFile, Header: SellerColumns}
	for _, r := range t.Sellers {
		sellers.Rows = append(sellers.Rows, sellerValues(r))
	}
	buyers := Table{Name: BuyerFile, Header: BuyerColumns}
	for _, r := range t.Buyers {
		buyers.Rows = append(buyers.Rows, buyerValues(r))
	}
	categories := Table{Name: CategoryFile, Header: CategoryColumns}
	for _, r := range t.Categories {
		categories.Rows = append(categories.Rows, categoryValues(r))
	}
	profiles := Table{Name: SellerProfileFile, Header: SellerProfileColumns}
	for _, r := range t.SellerProfiles {
		profiles.Rows = append(profiles.Rows, sellerProfileValues(r))
	}
	calls := Table{Name: CallLevelFile, Header: CallLevelColumns}
	for _, r := range t.Calls {
		calls.Rows = append(calls.Rows, callLevelValues(r))
	}
	matrix := Table{Name: ConfusionFile, Header: ConfusionColumns, Rows: confusionValues(t.Matrix)}
	return []Table{EncodeFlat(t.Flat), sellers, buyers, categories, profiles, calls, matrix}
}

// WriteAll stages every table next to its destination and only renames them
// into place once all of them were written. A failure leaves the previous
// run's files untouched.
func WriteAll(dir string, tabs []Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "tables: create %s", dir)
	}
	staged := make([]string, 0, len(tabs))
	cleanup := func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}
	for _, t := range tabs {
		tmp, err := stageCSV(dir, t)
		if err != nil {
			cleanup()
			return nil, err
		}
		staged = append(staged, tmp)
	}

	paths := make([]string, 0, len(tabs))
	for i, t := range tabs {
		dst := filepath.Join(dir, t.Name)
		if err := os.Rename(staged[i], dst); err != nil {
			cleanup()
			return paths, eris.Wrapf(err, "tables: replace %s", dst)
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

func stageCSV(dir string, t Table) (string, error) {
	f, err := os.CreateTemp(dir, "."+t.Name+".*.tmp")
	if err != nil {
		return "", eris.Wrapf(err, "tables: stage %s", t.Name)
	}
	w := csv.NewWriter(f)
	_ = w.Write(t.Header)
	werr := w.WriteAll(t.Rows)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(f.Name())
		if werr == nil {
			werr = cerr
		}
		return "", eris.Wrapf(werr, "tables: write %s", t.Name)
	}
	return f.Name(), nil
}
