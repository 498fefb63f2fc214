// Package processor handles one call at a time: transcript, then
// extraction, then flat rows. Every failure is recovered into a placeholder
// row so a batch never stops on a single call.
package processor

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"sales-insights-go/internal/extractor"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/normalizer"
	"sales-insights-go/internal/transcription"
	"sales-insights-go/internal/types"
)

// Transcriber turns a recording URL into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, rawURL, callerID, receiverID string) transcription.Result
}

// Extractor turns a transcript into a structured extraction.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (*types.CallExtraction, []byte, error)
}

type Outcome string

const (
	OutcomeOK                  Outcome = "ok"
	OutcomeAlreadyTranscribed  Outcome = "already_transcribed"
	OutcomeNoInput             Outcome = "no_input"
	OutcomeNoProducts          Outcome = "no_products"
	OutcomeTranscriptionFailed Outcome = "transcription_failed"
	OutcomeExtractionFailed    Outcome = "extraction_failed"
	OutcomeMalformedOutput     Outcome = "malformed_output"
)

// Kind folds an outcome into the success / failure / skip counts a stage reports.
func (o Outcome) Kind() string {
	switch o {
	case OutcomeOK:
		return "success"
	case OutcomeAlreadyTranscribed, OutcomeNoInput, OutcomeNoProducts:
		return "skip"
	default:
		return "failure"
	}
}

// CallResult is what analyzing one call produced.
type CallResult struct {
	CallID     string          `json:"call_id"`
	Outcome    Outcome         `json:"outcome"`
	Rows       []types.FlatRow `json:"rows"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

type Processor struct {
	tr  Transcriber
	ex  Extractor
	log *logger.Logger
}

// New builds a Processor. tr may be nil when every input row already carries
// a transcript.
func New(tr Transcriber, ex Extractor, log *logger.Logger) *Processor {
	return &Processor{tr: tr, ex: ex, log: log.WithComponent("processor")}
}

func meta(rec types.CallRecord) normalizer.CallMeta {
	return normalizer.CallMeta{CallID: rec.CallID, SellerID: rec.ReceiverID, BuyerID: rec.CallerID}
}

// TranscribeCall fills rec's transcript from its recording. index is the
// 1-based input row and only labels the returned JSONL line.
func (p *Processor) TranscribeCall(ctx context.Context, index int, rec types.CallRecord) (types.CallRecord, transcription.Line, Outcome) {
	if rec.Transcription != "" {
		return rec, transcription.Line{
			Index: index, CallID: rec.CallID, CallerID: rec.CallerID, ReceiverID: rec.ReceiverID,
			RecordingURL: rec.RecordingURL, Transcription: rec.Transcription,
		}, OutcomeAlreadyTranscribed
	}
	if transcription.SanitizeURL(rec.RecordingURL) == "" {
		p.log.WithField("call_id", rec.CallID).Info("skip: empty URL")
		return rec, transcription.EmptyURLLine(index, rec), OutcomeNoInput
	}
	if p.tr == nil {
		line := transcription.NewLine(index, rec, transcription.Result{Error: "transcription service not configured"})
		return rec, line, OutcomeTranscriptionFailed
	}

	res := p.tr.Transcribe(ctx, rec.RecordingURL, rec.CallerID, rec.ReceiverID)
	line := transcription.NewLine(index, rec, res)
	if !res.Success {
		return rec, line, OutcomeTranscriptionFailed
	}
	rec.Transcription = res.Data.Transcription
	return rec, line, OutcomeOK
}

// AnalyzeCall extracts and flattens one transcribed call.
func (p *Processor) AnalyzeCall(ctx context.Context, rec types.CallRecord) CallResult {
	start := time.Now()
	m := meta(rec)
	log := p.log.WithField("call_id", rec.CallID)
	res := CallResult{CallID: rec.CallID}
	finish := func(o Outcome, err error) CallResult {
		res.Outcome = o
		if err != nil {
			res.Error = err.Error()
			res.Rows = []types.FlatRow{normalizer.Placeholder(m)}
		}
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	if rec.Transcription == "" {
		log.Info("no transcript, adding placeholder row")
		return finish(OutcomeNoInput, eris.New("no transcript"))
	}
	ext, _, err := p.ex.Extract(ctx, rec.Transcription)
	if err != nil {
		log.WithError(err).Warn("extraction failed, adding placeholder row")
		if eris.Is(err, extractor.ErrMalformedOutput) {
			return finish(OutcomeMalformedOutput, err)
		}
		return finish(OutcomeExtractionFailed, err)
	}

	rows := normalizer.Flatten(ext, m)
	if len(rows) == 0 {
		// Nothing to tabulate: the call is recorded in the ledger only.
		log.Info("no products discussed, no rows")
		return finish(OutcomeNoProducts, nil)
	}
	res.Rows = rows
	log.WithField("rows", len(rows)).Info("call analyzed")
	return finish(OutcomeOK, nil)
}

// ProcessCall runs one call end to end.
func (p *Processor) ProcessCall(ctx context.Context, rec types.CallRecord) CallResult {
	rec, line, outcome := p.TranscribeCall(ctx, 1, rec)
	if outcome == OutcomeTranscriptionFailed {
		return CallResult{
			CallID:  rec.CallID,
			Outcome: outcome,
			Rows:    []types.FlatRow{normalizer.Placeholder(meta(rec))},
			Error:   line.Error,
		}
	}
	return p.AnalyzeCall(ctx, rec)
}
