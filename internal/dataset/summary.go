package dataset

import (
	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/logger"
)

// Summary describes a loaded calls input before any processing starts.
type Summary struct {
	TotalRows       int    `json:"total_rows"`
	WithTranscript  int    `json:"with_transcript"`
	WithURLOnly     int    `json:"with_url_only"`
	Empty           int    `json:"empty"`
	MissingCallID   int    `json:"missing_call_id"`
	DuplicateCalls  int    `json:"duplicate_calls"`
	UniqueReceivers int    `json:"unique_receivers"`
	Encoding        string `json:"encoding"`
}

// Summarize counts what the pipeline will be able to do with each row:
// analyze an existing transcript, transcribe a recording first, or nothing.
func Summarize(in *Input) Summary {
	s := Summary{Encoding: in.Encoding, TotalRows: len(in.Records)}
	seen := map[string]bool{}
	receivers := map[string]bool{}
	for _, r := range in.Records {
		switch {
		case r.Transcription != "":
			s.WithTranscript++
		case r.RecordingURL != "":
			s.WithURLOnly++
		default:
			s.Empty++
		}
		key := ids.Normalize(r.CallID)
		if key == "" {
			s.MissingCallID++
		} else if seen[key] {
			s.DuplicateCalls++
		}
		seen[key] = true
		if rid := ids.Normalize(r.ReceiverID); rid != "" {
			receivers[rid] = true
		}
	}
	s.UniqueReceivers = len(receivers)
	return s
}

// Log writes the summary as one structured entry.
func (s Summary) Log(log *logger.Logger) {
	log.WithFields(map[string]interface{}{
		"total_rows":       s.TotalRows,
		"with_transcript":  s.WithTranscript,
		"with_url_only":    s.WithURLOnly,
		"empty":            s.Empty,
		"missing_call_id":  s.MissingCallID,
		"duplicate_calls":  s.DuplicateCalls,
		"unique_receivers": s.UniqueReceivers,
		"encoding":         s.Encoding,
	}).Info("loaded calls input")
}
