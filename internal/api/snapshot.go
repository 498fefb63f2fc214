package api

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/tables"
	"sales-insights-go/internal/types"
)

// TableFiles are the persisted tables the API serves, keyed by the name used
// in the URL.
var TableFiles = map[string]string{
	"extracted_products": tables.FlatFile,
	"seller_level":       tables.SellerFile,
	"buyer_level":        tables.BuyerFile,
	"category_level":     tables.CategoryFile,
	"seller_aggregated":  tables.SellerProfileFile,
	"call_level":         tables.CallLevelFile,
	"confusion_matrix":   tables.ConfusionFile,
}

type Table struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// Snapshot is one immutable read of the output directory.
type Snapshot struct {
	LoadedAt time.Time
	Tables   map[string]Table
	Calls    []types.CallLevelRecord
	Matrix   types.ConfusionMatrix

	byCall map[string][]int
	flat   map[string][]map[string]string
}

// LoadSnapshot reads every table present in dir. Missing files are left out;
// a file that exists but cannot be parsed is an error.
func LoadSnapshot(dir string, now time.Time) (*Snapshot, error) {
	s := &Snapshot{
		LoadedAt: now,
		Tables:   map[string]Table{},
		byCall:   map[string][]int{},
		flat:     map[string][]map[string]string{},
	}
	for name, file := range TableFiles {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, eris.Wrapf(err, "api: stat %s", path)
		}
		cols, rows, err := tables.ReadRecords(path)
		if err != nil {
			return nil, err
		}
		s.Tables[name] = Table{Columns: cols, Rows: rows}
	}

	if _, ok := s.Tables["call_level"]; ok {
		calls, err := tables.ReadCallLevel(filepath.Join(dir, tables.CallLevelFile))
		if err != nil {
			return nil, err
		}
		s.Calls = calls
		for i, c := range calls {
			key := ids.Normalize(c.CallID)
			s.byCall[key] = append(s.byCall[key], i)
		}
	}
	if _, ok := s.Tables["confusion_matrix"]; ok {
		m, err := tables.ReadConfusion(filepath.Join(dir, tables.ConfusionFile))
		if err != nil {
			return nil, err
		}
		s.Matrix = m
	}
	for _, row := range s.Tables["extracted_products"].Rows {
		key := ids.Normalize(row["call_id"])
		s.flat[key] = append(s.flat[key], row)
	}
	return s, nil
}

// CallView is everything known about one call.
type CallView struct {
	CallID   string                  `json:"call_id"`
	Calls    []types.CallLevelRecord `json:"call_level"`
	Products []map[string]string     `json:"products"`
}

// Call looks a call up by id, normalizing the query the same way the tables
// were joined.
func (s *Snapshot) Call(raw string) (CallView, bool) {
	key := ids.Normalize(raw)
	if key == "" {
		return CallView{}, false
	}
	v := CallView{CallID: key, Products: s.flat[key]}
	for _, i := range s.byCall[key] {
		v.Calls = append(v.Calls, s.Calls[i])
	}
	return v, len(v.Calls) > 0 || len(v.Products) > 0
}

// TableNames lists the loaded tables in a stable order.
func (s *Snapshot) TableNames() []string {
	var out []string
	for _, name := range tableOrder {
		if _, ok := s.Tables[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

var tableOrder = []string{
	"extracted_products", "seller_level", "buyer_level", "category_level",
	"seller_aggregated", "call_level", "confusion_matrix",
}

// label accepts "high"/"LOW" style query values.
func label(v string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "high":
		return types.IntentHigh, true
	case "low":
		return types.IntentLow, true
	}
	return "", false
}
