package tables

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
	"sales-insights-go/internal/aggregator"
	"sales-insights-go/internal/types"
)

func sampleTables() aggregator.Tables {
	initial, final, discount := 100.0, 80.0, 20.0
	var m types.ConfusionMatrix
	m.Add(types.IntentHigh, types.IntentHigh)
	m.Add(types.IntentLow, types.IntentHigh)
	m.Add(types.IntentLow, types.IntentHigh)
	return aggregator.Tables{
		Flat: []types.FlatRow{{CallID: "1", ProductID: "P1", PriceValue: "100", BuyerSentiment: "positive", VariantAttributes: `{"grade":"316"}`}},
		Sellers: []types.SellerLevelRecord{{
			CallID: "1", SellerID: "S1", InitialPrice: &initial, FinalPrice: &final, DiscountPercent: &discount,
			IntermediatePrices: []float64{100, 92.5}, NegotiationFlag: "yes", NumberOfPriceRevisions: 3,
		}},
		Buyers:     []types.BuyerLevelRecord{{CallID: "1", BuyerID: "B1", IsHighIntent: true}},
		Categories: []types.CategoryLevelRecord{{ProductName: "Pipe", CallCount: 1, TopRequestedSpecs: []string{"grade:316", "size:2in"}}},
		Calls:      []types.CallLevelRecord{{CallID: "1", BuyerIntentLabel: "High", SellerIntentLabel: "High", FinalPrice: &final}},
		Matrix:     m,
	}
}

func TestEncodeFormatsValues(t *testing.T) {
	tabs := Encode(sampleTables())
	if len(tabs) != 7 {
		t.Fatalf("expected 7 tables, got %d", len(tabs))
	}
	for _, tab := range tabs {
		for _, row := range tab.Rows {
			if len(row) != len(tab.Header) {
				t.Fatalf("%s: row width %d != header width %d", tab.Name, len(row), len(tab.Header))
			}
		}
	}
	seller := tabs[1].Rows[0]
	if seller[5] != "100" || seller[6] != "100|92.5" || seller[7] != "80" || seller[8] != "20" {
		t.Fatalf("unexpected price cells %v", seller[5:9])
	}
	if tabs[2].Rows[0][15] != "true" {
		t.Fatalf("unexpected is_high_intent cell %q", tabs[2].Rows[0][15])
	}
	if tabs[3].Rows[0][11] != "grade:316|size:2in" || tabs[3].Rows[0][7] != "" {
		t.Fatalf("unexpected category cells %v", tabs[3].Rows[0])
	}
	want := [][]string{{"High", "1", "0"}, {"Low", "2", "0"}}
	if !reflect.DeepEqual(tabs[6].Rows, want) {
		t.Fatalf("unexpected matrix rows %v", tabs[6].Rows)
	}
}

func TestWriteAllAndReadBack(t *testing.T) {
	dir := t.TempDir()
	tabs := Encode(sampleTables())
	paths, err := WriteAll(dir, tabs)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(paths) != len(tabs) {
		t.Fatalf("expected %d paths, got %d", len(tabs), len(paths))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != len(tabs) {
		t.Fatalf("staging files left behind: %d entries", len(entries))
	}

	flat, err := ReadFlat(filepath.Join(dir, FlatFile))
	if err != nil {
		t.Fatalf("read flat: %v", err)
	}
	if len(flat) != 1 || flat[0].PriceValue != "100" || flat[0].VariantAttributes != `{"grade":"316"}` || flat[0].BuyerSentiment != "positive" {
		t.Fatalf("flat row did not survive the round trip: %+v", flat)
	}

	m, err := ReadConfusion(filepath.Join(dir, ConfusionFile))
	if err != nil {
		t.Fatalf("read matrix: %v", err)
	}
	if m.Counts != sampleTables().Matrix.Counts {
		t.Fatalf("matrix mismatch %v", m.Counts)
	}

	header, recs, err := ReadRecords(filepath.Join(dir, SellerFile))
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if !reflect.DeepEqual(header, SellerColumns) || recs[0]["negotiation_flag"] != "yes" {
		t.Fatalf("unexpected seller table %v %v", header, recs)
	}
}

func TestWriteAllKeepsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteAll(dir, Encode(sampleTables())); err != nil {
		t.Fatalf("first write: %v", err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, SellerFile))

	bad := Encode(aggregator.Tables{})
	bad = append(bad, Table{Name: "nested/missing/dir.csv", Header: []string{"x"}})
	if _, err := WriteAll(dir, bad); err == nil {
		t.Fatalf("expected failure for unwritable table")
	}
	after, _ := os.ReadFile(filepath.Join(dir, SellerFile))
	if string(before) != string(after) {
		t.Fatalf("previous output was overwritten by a failed run")
	}
}

func TestReadFlatRequiresCallID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.csv")
	if err := os.WriteFile(path, []byte("product_id\nP1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFlat(path); err == nil {
		t.Fatalf("expected missing column error")
	}
}

func TestExportWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), WorkbookFile)
	if err := ExportWorkbook(path, Encode(sampleTables())); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) != 7 || sheets[0] != "extracted_products" {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	for _, s := range sheets {
		if len(s) > maxSheetName {
			t.Fatalf("sheet name too long: %q", s)
		}
	}
	v, err := f.GetCellValue("seller_level", "H2")
	if err != nil || v != "80" {
		t.Fatalf("unexpected final price cell %q err=%v", v, err)
	}
}

func TestReadCallLevel(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteAll(dir, Encode(sampleTables())); err != nil {
		t.Fatalf("write: %v", err)
	}
	calls, err := ReadCallLevel(filepath.Join(dir, CallLevelFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(calls) != 1 || calls[0].BuyerIntentLabel != "High" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if calls[0].FinalPrice == nil || *calls[0].FinalPrice != 80 {
		t.Fatalf("unexpected final price %v", calls[0].FinalPrice)
	}
}
