package tables

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"sales-insights-go/internal/types"
)

// ReadCSV loads a persisted table.
func ReadCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "tables: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "tables: read %s", path)
	}
	if len(records) == 0 {
		return nil, nil, eris.Errorf("tables: %s has no header", path)
	}
	header := records[0]
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}
	return header, records[1:], nil
}

// ReadRecords loads a table as one column-name map per row.
func ReadRecords(path string) ([]string, []map[string]string, error) {
	header, rows, err := ReadCSV(path)
	if err != nil {
		return nil, nil, err
	}
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return header, out, nil
}

// ReadFlat loads a flattened extraction table. Only call_id is required;
// columns the file lacks read as empty.
func ReadFlat(path string) ([]types.FlatRow, error) {
	header, rows, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	if _, ok := idx["call_id"]; !ok {
		return nil, eris.Errorf("tables: %s is missing column %q", path, "call_id")
	}
	out := make([]types.FlatRow, 0, len(rows))
	for _, row := range rows {
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		out = append(out, flatFromRecord(get))
	}
	return out, nil
}

// ReadConfusion loads the persisted confusion matrix counts.
func ReadConfusion(path string) (types.ConfusionMatrix, error) {
	var m types.ConfusionMatrix
	header, rows, err := ReadCSV(path)
	if err != nil {
		return m, err
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[h] = i
	}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		seller := strings.TrimSpace(row[0])
		for _, buyer := range types.IntentLabels {
			i, ok := cols[buyer]
			if !ok || i >= len(row) {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(row[i]))
			if err != nil {
				return m, eris.Wrapf(err, "tables: cell %s/%s in %s", seller, buyer, path)
			}
			m.Set(seller, buyer, n)
		}
	}
	return m, nil
}

// ReadCallLevel loads the call-level insight table.
func ReadCallLevel(path string) ([]types.CallLevelRecord, error) {
	_, recs, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	out := make([]types.CallLevelRecord, 0, len(recs))
	for _, r := range recs {
		c := types.CallLevelRecord{
			CallID:                        r["call_id"],
			BuyerID:                       r["buyer_id"],
			SellerID:                      r["seller_id"],
			BuyerIntentLabel:              r["Buyer_Intent_Label"],
			SellerIntentLabel:             r["Seller_Intent_Label"],
			BuyerSentiment:                r["buyer_sentiment"],
			SellerSentiment:               r["seller_sentiment"],
			NegotiationFlag:               r["negotiation_flag"],
			ProductName:                   r["product_name"],
			DeliveryResponsibility:        r["delivery_responsibility"],
			SellerDeliversToBuyerLocation: r["seller_delivers_to_buyer_location"],
		}
		c.IsHighIntent, _ = strconv.ParseBool(r["is_high_intent"])
		if v, err := strconv.ParseFloat(strings.TrimSpace(r["final_price"]), 64); err == nil {
			c.FinalPrice = &v
		}
		out = append(out, c)
	}
	return out, nil
}
