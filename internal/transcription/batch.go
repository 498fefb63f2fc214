package transcription

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/types"
)

// Line is one JSONL record of a batch transcription run. Failed rows carry
// Error and no transcript.
type Line struct {
	Index            int    `json:"index"`
	CallID           string `json:"call_id,omitempty"`
	CallerID         string `json:"caller_id"`
	ReceiverID       string `json:"receiver_id"`
	RecordingURL     string `json:"pns_call_recording_url"`
	NormalizedURL    string `json:"normalized_url,omitempty"`
	MediaID          string `json:"media_id,omitempty"`
	TranscriptionURL string `json:"transcription_url,omitempty"`
	Transcription    string `json:"transcription,omitempty"`
	Error            string `json:"error,omitempty"`
}

// NewLine records the outcome of transcribing the index-th input row (1-based).
func NewLine(index int, rec types.CallRecord, res Result) Line {
	l := Line{
		Index:        index,
		CallID:       rec.CallID,
		CallerID:     rec.CallerID,
		ReceiverID:   rec.ReceiverID,
		RecordingURL: rec.RecordingURL,
		Error:        res.Error,
	}
	if res.Data != nil {
		l.NormalizedURL = res.Data.NormalizedURL
		l.MediaID = res.Data.MediaID
		l.TranscriptionURL = res.Data.TranscriptionURL
		l.Transcription = res.Data.Transcription
	} else if rec.RecordingURL != "" {
		l.NormalizedURL = NormalizeURL(rec.RecordingURL)
	}
	return l
}

// EmptyURLLine records a row that had nothing to transcribe.
func EmptyURLLine(index int, rec types.CallRecord) Line {
	return Line{
		Index:        index,
		CallID:       rec.CallID,
		CallerID:     rec.CallerID,
		ReceiverID:   rec.ReceiverID,
		RecordingURL: rec.RecordingURL,
		Error:        "Empty URL",
	}
}

// Writer appends lines to a JSONL stream, one object per line.
type Writer struct {
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

func (w *Writer) Write(l Line) error {
	return eris.Wrap(w.enc.Encode(l), "transcription: write jsonl line")
}

// ReadLines parses a JSONL stream written by Writer. Blank lines are skipped.
func ReadLines(r io.Reader) ([]Line, error) {
	var out []Line
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var l Line
		if err := json.Unmarshal(b, &l); err != nil {
			return nil, eris.Wrapf(err, "transcription: jsonl line %d", n)
		}
		out = append(out, l)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "transcription: read jsonl")
	}
	return out, nil
}

// Merge fills empty transcripts of records from successful lines, matching on
// normalized call id. It returns how many records were filled.
func Merge(records []types.CallRecord, lines []Line) int {
	byCall := make(map[string]string, len(lines))
	for _, l := range lines {
		key := ids.Normalize(l.CallID)
		if key == "" || l.Error != "" || l.Transcription == "" {
			continue
		}
		byCall[key] = l.Transcription
	}
	filled := 0
	for i := range records {
		if records[i].Transcription != "" {
			continue
		}
		if text, ok := byCall[ids.Normalize(records[i].CallID)]; ok {
			records[i].Transcription = text
			filled++
		}
	}
	return filled
}
