// Package dataset reads the raw calls input and the call reference table.
package dataset

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/types"
)

var (
	ErrMissingColumns = eris.New("dataset: missing required columns")
	ErrUndecodable    = eris.New("dataset: no supported encoding could read the file")
)

// Header aliases, most specific first.
var (
	callIDColumns     = []string{"call_id", "pns_call_record_id"}
	receiverColumns   = []string{"Reciever Seller ID", "receiver_id", "pns_call_receiver_glusr_id"}
	callerColumns     = []string{"caller_id", "pns_call_caller_glusr_id"}
	urlColumns        = []string{"pns_call_recording_url", "recording_url", "callRecordingLink"}
	transcriptColumns = []string{"call_transcription", "transcription"}

	refCallColumns   = []string{"pns_call_record_id", "call_id"}
	refSellerColumns = []string{"pns_call_receiver_glusr_id", "seller_id", "receiver_id"}
	refBuyerColumns  = []string{"pns_call_caller_glusr_id", "buyer_id", "caller_id"}
)

type encoding struct {
	name   string
	decode func([]byte) (string, error)
}

// encodings are tried in order; the first one that yields a parseable table wins.
var encodings = []encoding{
	{"utf-8", decodeUTF8},
	{"latin-1", charmapDecoder(charmap.ISO8859_1)},
	{"cp1252", charmapDecoder(charmap.Windows1252)},
	{"iso-8859-1", charmapDecoder(charmap.ISO8859_1)},
}

func decodeUTF8(b []byte) (string, error) {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(b) {
		return "", eris.New("invalid utf-8")
	}
	return string(b), nil
}

func charmapDecoder(cm *charmap.Charmap) func([]byte) (string, error) {
	return func(b []byte) (string, error) {
		out, err := cm.NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

// Input is the parsed raw calls file.
type Input struct {
	Path     string
	Encoding string
	Header   []string
	Records  []types.CallRecord
}

// table is a header plus data rows, whatever the source format.
type table struct {
	header []string
	rows   [][]string
}

func (t table) index(aliases []string) int {
	for _, a := range aliases {
		for i, h := range t.header {
			if strings.EqualFold(strings.TrimSpace(h), a) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	switch strings.ToLower(v) {
	case "nan", "none", "null":
		return ""
	}
	return v
}

// LoadCalls reads the raw calls input, CSV or XLSX by extension. A call id,
// a receiver id and a recording URL or transcription column are required;
// a URL-only file must also name the caller. Any structural problem is
// returned before a single record is produced.
func LoadCalls(path string) (*Input, error) {
	t, enc, err := readTable(path)
	if err != nil {
		return nil, err
	}

	callIdx := t.index(callIDColumns)
	receiverIdx := t.index(receiverColumns)
	callerIdx := t.index(callerColumns)
	urlIdx := t.index(urlColumns)
	textIdx := t.index(transcriptColumns)

	var missing []string
	if callIdx < 0 {
		missing = append(missing, strings.Join(callIDColumns, "|"))
	}
	if receiverIdx < 0 {
		missing = append(missing, strings.Join(receiverColumns, "|"))
	}
	if urlIdx < 0 && textIdx < 0 {
		missing = append(missing, strings.Join(append(append([]string{}, urlColumns...), transcriptColumns...), "|"))
	}
	if textIdx < 0 && callerIdx < 0 {
		missing = append(missing, strings.Join(callerColumns, "|"))
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrMissingColumns, "%s: %s", path, strings.Join(missing, ", "))
	}

	in := &Input{Path: path, Encoding: enc, Header: t.header}
	for _, r := range t.rows {
		if isBlank(r) {
			continue
		}
		in.Records = append(in.Records, types.CallRecord{
			CallID:        cell(r, callIdx),
			CallerID:      cell(r, callerIdx),
			ReceiverID:    cell(r, receiverIdx),
			RecordingURL:  cell(r, urlIdx),
			Transcription: cell(r, textIdx),
		})
	}
	return in, nil
}

// LoadReference reads the call reference table into call id -> parties.
// Keys are normalized; a later row for the same call replaces an earlier one.
func LoadReference(path string) (map[string]ids.Parties, error) {
	t, _, err := readTable(path)
	if err != nil {
		return nil, err
	}
	callIdx := t.index(refCallColumns)
	sellerIdx := t.index(refSellerColumns)
	buyerIdx := t.index(refBuyerColumns)
	if callIdx < 0 || sellerIdx < 0 || buyerIdx < 0 {
		return nil, eris.Wrapf(ErrMissingColumns, "%s: need %s, %s and %s", path,
			refCallColumns[0], refSellerColumns[0], refBuyerColumns[0])
	}

	out := make(map[string]ids.Parties, len(t.rows))
	for _, r := range t.rows {
		key := ids.Normalize(cell(r, callIdx))
		if key == "" {
			continue
		}
		out[key] = ids.Parties{
			SellerID: ids.Normalize(cell(r, sellerIdx)),
			BuyerID:  ids.Normalize(cell(r, buyerIdx)),
		}
	}
	return out, nil
}

func readTable(path string) (table, string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		t, err := readWorkbook(path)
		return t, "xlsx", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return table{}, "", eris.Wrapf(err, "dataset: read %s", path)
	}
	return decodeCSV(data, path)
}

func decodeCSV(data []byte, path string) (table, string, error) {
	var lastErr error
	for _, enc := range encodings {
		text, err := enc.decode(data)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.ContainsRune(text, 0) {
			lastErr = eris.Errorf("%s decoding yields NUL bytes", enc.name)
			continue
		}
		r := csv.NewReader(strings.NewReader(text))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		records, err := r.ReadAll()
		if err != nil {
			lastErr = err
			continue
		}
		if len(records) == 0 {
			return table{}, enc.name, eris.Wrapf(ErrMissingColumns, "%s: empty file", path)
		}
		return table{header: records[0], rows: records[1:]}, enc.name, nil
	}
	return table{}, "", eris.Wrapf(ErrUndecodable, "%s: %v", path, lastErr)
}

func readWorkbook(path string) (table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return table{}, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table{}, eris.Wrapf(ErrMissingColumns, "%s: no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return table{}, eris.Wrapf(err, "dataset: read rows of %s", path)
	}
	if len(rows) == 0 {
		return table{}, eris.Wrapf(ErrMissingColumns, "%s: empty sheet", path)
	}
	return table{header: rows[0], rows: rows[1:]}, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
