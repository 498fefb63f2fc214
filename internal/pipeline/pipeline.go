// Package pipeline sequences the batch stages: transcribe, analyze and
// aggregate. Calls are processed one at a time with a fixed pause between
// network round trips. Nothing is written until every stage of a command has
// finished, so a failed run leaves the previous outputs in place.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"sales-insights-go/internal/aggregator"
	"sales-insights-go/internal/dataset"
	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/processor"
	"sales-insights-go/internal/store"
	"sales-insights-go/internal/tables"
	"sales-insights-go/internal/transcription"
	"sales-insights-go/internal/types"
)

const (
	StageTranscribe = "transcribe"
	StageAnalyze    = "analyze"

	TranscriptsFile = "transcriptions.jsonl"
)

type Options struct {
	InputPath     string
	ReferencePath string
	OutputDir     string

	InterCallDelay time.Duration
	Aggregate      aggregator.Options
	Workbook       bool
}

// Ledger records runs. *store.Store implements it.
type Ledger interface {
	StartRun(ctx context.Context, r store.Run) error
	RecordStage(ctx context.Context, runID string, position int, st store.StageReport) error
	RecordCall(ctx context.Context, runID string, c store.CallOutcome, ts time.Time) error
	FinishRun(ctx context.Context, runID, status string, runErr error, ts time.Time) error
}

// Report is what a command hands back to its caller.
type Report struct {
	RunID   string              `json:"run_id"`
	Command string              `json:"command"`
	Input   *dataset.Summary    `json:"input,omitempty"`
	Stages  []store.StageReport `json:"stages"`
	Outputs []string            `json:"outputs"`
	Tables  aggregator.Tables   `json:"-"`
}

type Runner struct {
	opts   Options
	proc   *processor.Processor
	ledger Ledger
	log    *logger.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// New builds a Runner. proc may be nil for aggregate-only use and ledger may
// be nil when no run history is kept.
func New(opts Options, proc *processor.Processor, ledger Ledger, log *logger.Logger) *Runner {
	return &Runner{opts: opts, proc: proc, ledger: ledger, log: log, now: time.Now, sleep: sleepCtx}
}

// run is the state of one command invocation.
type run struct {
	*Runner
	id     string
	log    *logger.Logger
	report *Report
}

func (r *Runner) begin(ctx context.Context, command string) *run {
	id := uuid.NewString()
	rn := &run{
		Runner: r,
		id:     id,
		log:    r.log.WithRun(id).WithComponent("pipeline"),
		report: &Report{RunID: id, Command: command},
	}
	if r.ledger != nil {
		err := r.ledger.StartRun(ctx, store.Run{
			RunID: id, Command: command, InputPath: r.opts.InputPath, OutputDir: r.opts.OutputDir, StartedAt: r.now(),
		})
		if err != nil {
			rn.log.WithError(err).Warn("run ledger unavailable")
		}
	}
	rn.log.WithField("command", command).Info("run started")
	return rn
}

func (rn *run) finish(ctx context.Context, err error) (*Report, error) {
	status := store.StatusSucceeded
	if err != nil {
		status = store.StatusFailed
		rn.log.WithError(err).Error("run failed, previous outputs left untouched")
	} else {
		rn.log.WithField("outputs", rn.report.Outputs).Info("run finished")
	}
	if rn.ledger != nil {
		// The ledger entry is closed even when ctx was cancelled.
		if lerr := rn.ledger.FinishRun(context.WithoutCancel(ctx), rn.id, status, err, rn.now()); lerr != nil {
			rn.log.WithError(lerr).Warn("could not close run in ledger")
		}
	}
	return rn.report, err
}

func (rn *run) recordStage(ctx context.Context, st store.StageReport) {
	rn.log.WithFields(map[string]interface{}{
		"stage":       st.Stage,
		"input":       st.Input,
		"success":     st.Success,
		"failure":     st.Failure,
		"skip":        st.Skip,
		"output_rows": st.OutputRows,
	}).Info("stage complete")
	position := len(rn.report.Stages)
	rn.report.Stages = append(rn.report.Stages, st)
	if rn.ledger != nil {
		if err := rn.ledger.RecordStage(ctx, rn.id, position, st); err != nil {
			rn.log.WithError(err).Warn("could not record stage")
		}
	}
}

func (rn *run) recordCall(ctx context.Context, c store.CallOutcome) {
	if rn.ledger == nil {
		return
	}
	if err := rn.ledger.RecordCall(ctx, rn.id, c, rn.now()); err != nil {
		rn.log.WithError(err).Warn("could not record call outcome")
	}
}

func (rn *run) loadInput() (*dataset.Input, error) {
	in, err := dataset.LoadCalls(rn.opts.InputPath)
	if err != nil {
		return nil, err
	}
	s := dataset.Summarize(in)
	s.Log(rn.log)
	rn.report.Input = &s
	return in, nil
}

func (rn *run) loadResolver() (*ids.Resolver, error) {
	if rn.opts.ReferencePath == "" {
		rn.log.Info("no reference table, resolving parties from the calls themselves")
		return nil, nil
	}
	ref, err := dataset.LoadReference(rn.opts.ReferencePath)
	if err != nil {
		return nil, err
	}
	res := ids.NewResolver(ref)
	rn.log.WithField("calls", res.Len()).Info("reference table loaded")
	return res, nil
}

func (rn *run) needProcessor() error {
	if rn.proc == nil {
		return eris.New("pipeline: no call processor configured")
	}
	return nil
}

// pacer waits the inter-call delay before every network round trip but the first.
type pacer struct {
	rn      *run
	started bool
}

func (p *pacer) wait(ctx context.Context) error {
	if p.started {
		if err := p.rn.sleep(ctx, p.rn.opts.InterCallDelay); err != nil {
			return eris.Wrap(err, "pipeline: interrupted")
		}
	}
	p.started = true
	return ctx.Err()
}

func (rn *run) transcribeStage(ctx context.Context, records []types.CallRecord) ([]types.CallRecord, []transcription.Line, error) {
	st := store.StageReport{Stage: StageTranscribe, Input: len(records)}
	out := make([]types.CallRecord, len(records))
	lines := make([]transcription.Line, 0, len(records))
	p := &pacer{rn: rn}
	for i, rec := range records {
		needsNetwork := rec.Transcription == "" && transcription.SanitizeURL(rec.RecordingURL) != ""
		if needsNetwork {
			if err := p.wait(ctx); err != nil {
				return nil, nil, err
			}
		}
		start := rn.now()
		updated, line, outcome := rn.proc.TranscribeCall(ctx, i+1, rec)
		out[i] = updated
		lines = append(lines, line)
		count(&st, outcome)
		if outcome != processor.OutcomeAlreadyTranscribed {
			rn.recordCall(ctx, store.CallOutcome{
				Stage: StageTranscribe, CallID: rec.CallID, Outcome: string(outcome),
				Error: line.Error, DurationMs: rn.now().Sub(start).Milliseconds(),
			})
		}
	}
	st.OutputRows = len(lines)
	rn.recordStage(ctx, st)
	return out, lines, nil
}

func (rn *run) analyzeStage(ctx context.Context, records []types.CallRecord) ([]types.FlatRow, error) {
	st := store.StageReport{Stage: StageAnalyze, Input: len(records)}
	var rows []types.FlatRow
	p := &pacer{rn: rn}
	for i, rec := range records {
		if rec.Transcription != "" {
			if err := p.wait(ctx); err != nil {
				return nil, err
			}
		}
		res := rn.proc.AnalyzeCall(ctx, rec)
		rn.log.WithFields(map[string]interface{}{
			"call":    i + 1,
			"of":      len(records),
			"call_id": rec.CallID,
			"outcome": res.Outcome,
		}).Debug("call processed")
		rows = append(rows, res.Rows...)
		count(&st, res.Outcome)
		rn.recordCall(ctx, store.CallOutcome{
			Stage: StageAnalyze, CallID: rec.CallID, Outcome: string(res.Outcome),
			Error: res.Error, DurationMs: res.DurationMs,
		})
	}
	st.OutputRows = len(rows)
	rn.recordStage(ctx, st)
	return rows, nil
}

func (rn *run) aggregateStage(ctx context.Context, rows []types.FlatRow, resolver *ids.Resolver) aggregator.Tables {
	t, counts := aggregator.Aggregate(rows, resolver, rn.opts.Aggregate, rn.log)
	for _, c := range counts {
		rn.recordStage(ctx, store.StageReport{
			Stage: c.Stage, Input: c.Input, Success: c.Output, Skip: c.Skipped, OutputRows: c.Output,
		})
	}
	rn.report.Tables = t
	return t
}

func count(st *store.StageReport, o processor.Outcome) {
	switch o.Kind() {
	case "success":
		st.Success++
	case "skip":
		st.Skip++
	default:
		st.Failure++
	}
}

// Transcribe fetches transcripts for every input row that has a recording
// and writes them as JSONL into the output directory.
func (r *Runner) Transcribe(ctx context.Context) (*Report, error) {
	rn := r.begin(ctx, "transcribe")
	if err := rn.needProcessor(); err != nil {
		return rn.finish(ctx, err)
	}
	in, err := rn.loadInput()
	if err != nil {
		return rn.finish(ctx, err)
	}
	_, lines, err := rn.transcribeStage(ctx, in.Records)
	if err != nil {
		return rn.finish(ctx, err)
	}
	path := filepath.Join(r.opts.OutputDir, TranscriptsFile)
	if err := writeLines(path, lines); err != nil {
		return rn.finish(ctx, err)
	}
	rn.report.Outputs = append(rn.report.Outputs, path)
	return rn.finish(ctx, nil)
}

// Analyze extracts every transcribed call and writes the flat table.
// Transcripts missing from the input are taken from an earlier transcribe
// run when its JSONL file exists.
func (r *Runner) Analyze(ctx context.Context) (*Report, error) {
	rn := r.begin(ctx, "analyze")
	if err := rn.needProcessor(); err != nil {
		return rn.finish(ctx, err)
	}
	in, err := rn.loadInput()
	if err != nil {
		return rn.finish(ctx, err)
	}
	if err := rn.mergeTranscripts(in.Records); err != nil {
		return rn.finish(ctx, err)
	}
	rows, err := rn.analyzeStage(ctx, in.Records)
	if err != nil {
		return rn.finish(ctx, err)
	}
	paths, err := tables.WriteAll(r.opts.OutputDir, []tables.Table{tables.EncodeFlat(rows)})
	if err != nil {
		return rn.finish(ctx, err)
	}
	rn.report.Outputs = append(rn.report.Outputs, paths...)
	return rn.finish(ctx, nil)
}

func (rn *run) mergeTranscripts(records []types.CallRecord) error {
	path := filepath.Join(rn.opts.OutputDir, TranscriptsFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close()
	lines, err := transcription.ReadLines(f)
	if err != nil {
		return err
	}
	n := transcription.Merge(records, lines)
	rn.log.WithField("path", path).WithField("filled", n).Info("merged transcripts from earlier run")
	return nil
}

// Aggregate rebuilds every derived table from the persisted flat table.
func (r *Runner) Aggregate(ctx context.Context) (*Report, error) {
	rn := r.begin(ctx, "aggregate")
	rows, err := tables.ReadFlat(filepath.Join(r.opts.OutputDir, tables.FlatFile))
	if err != nil {
		return rn.finish(ctx, err)
	}
	resolver, err := rn.loadResolver()
	if err != nil {
		return rn.finish(ctx, err)
	}
	t := rn.aggregateStage(ctx, rows, resolver)
	// The flat table is the input here and is left as it is.
	if err := rn.write(tables.Encode(t)[1:]); err != nil {
		return rn.finish(ctx, err)
	}
	return rn.finish(ctx, nil)
}

// Run executes all three stages and writes every output at the end.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rn := r.begin(ctx, "run")
	if err := rn.needProcessor(); err != nil {
		return rn.finish(ctx, err)
	}
	in, err := rn.loadInput()
	if err != nil {
		return rn.finish(ctx, err)
	}
	resolver, err := rn.loadResolver()
	if err != nil {
		return rn.finish(ctx, err)
	}
	records, lines, err := rn.transcribeStage(ctx, in.Records)
	if err != nil {
		return rn.finish(ctx, err)
	}
	rows, err := rn.analyzeStage(ctx, records)
	if err != nil {
		return rn.finish(ctx, err)
	}
	t := rn.aggregateStage(ctx, rows, resolver)

	if err := rn.write(tables.Encode(t)); err != nil {
		return rn.finish(ctx, err)
	}
	path := filepath.Join(r.opts.OutputDir, TranscriptsFile)
	if err := writeLines(path, lines); err != nil {
		return rn.finish(ctx, err)
	}
	rn.report.Outputs = append(rn.report.Outputs, path)
	return rn.finish(ctx, nil)
}

func (rn *run) write(tabs []tables.Table) error {
	paths, err := tables.WriteAll(rn.opts.OutputDir, tabs)
	if err != nil {
		return err
	}
	rn.report.Outputs = append(rn.report.Outputs, paths...)
	if rn.opts.Workbook {
		wb := filepath.Join(rn.opts.OutputDir, tables.WorkbookFile)
		if err := tables.ExportWorkbook(wb, tabs); err != nil {
			return err
		}
		rn.report.Outputs = append(rn.report.Outputs, wb)
	}
	return nil
}

// writeLines replaces path with the given JSONL lines.
func writeLines(path string, lines []transcription.Line) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create dir for %s", path)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "pipeline: stage %s", path)
	}
	w := transcription.NewWriter(f)
	for _, l := range lines {
		if err := w.Write(l); err != nil {
			f.Close()
			_ = os.Remove(f.Name())
			return err
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		_ = os.Remove(f.Name())
		return eris.Wrapf(err, "pipeline: replace %s", path)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
