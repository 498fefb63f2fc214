// Command insights runs the batch pipeline: transcribe, analyze, aggregate,
// or all three with run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"sales-insights-go/internal/aggregator"
	"sales-insights-go/internal/config"
	"sales-insights-go/internal/extractor"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/pipeline"
	"sales-insights-go/internal/processor"
	"sales-insights-go/internal/store"
	"sales-insights-go/internal/transcription"
	"sales-insights-go/internal/types"
)

const usage = `usage: insights [flags] <command>

commands:
  transcribe   transcribe recordings into transcriptions.jsonl
  analyze      extract products from transcripts into the flat table
  aggregate    rebuild the derived tables from the flat table
  run          all three, writing every output at the end

flags:
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("insights", flag.ExitOnError)
	fs.StringVar(&cfg.InputPath, "input", cfg.InputPath, "calls CSV or XLSX")
	fs.StringVar(&cfg.ReferencePath, "reference", cfg.ReferencePath, "optional call/seller/buyer reference CSV")
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "output directory")
	fs.StringVar(&cfg.LedgerPath, "ledger", cfg.LedgerPath, "SQLite run ledger path")
	noWorkbook := fs.Bool("no-workbook", false, "skip the XLSX workbook export")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)
	if err := run(fs.Arg(0), cfg, !*noWorkbook, log); err != nil {
		log.WithError(err).Error("insights failed")
		os.Exit(1)
	}
}

func run(command string, cfg config.Config, workbook bool, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := store.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	var proc *processor.Processor
	switch command {
	case "transcribe":
		proc = processor.New(transcriber(cfg, log), nil, log)
	case "analyze", "run":
		ex, err := llmExtractor(ctx, cfg, log)
		if err != nil {
			return err
		}
		proc = processor.New(transcriber(cfg, log), ex, log)
	case "aggregate":
	default:
		return eris.Errorf("unknown command %q", command)
	}

	runner := pipeline.New(pipeline.Options{
		InputPath:      cfg.InputPath,
		ReferencePath:  cfg.ReferencePath,
		OutputDir:      cfg.OutputDir,
		InterCallDelay: cfg.InterCallDelay,
		Aggregate:      aggregateOptions(cfg),
		Workbook:       workbook,
	}, proc, ledger, log)

	var report *pipeline.Report
	switch command {
	case "transcribe":
		report, err = runner.Transcribe(ctx)
	case "analyze":
		report, err = runner.Analyze(ctx)
	case "aggregate":
		report, err = runner.Aggregate(ctx)
	case "run":
		report, err = runner.Run(ctx)
	}
	if report != nil {
		printReport(report)
	}
	return err
}

func transcriber(cfg config.Config, log *logger.Logger) *transcription.Client {
	opts := transcription.DefaultOptions()
	opts.Endpoint = cfg.TranscribeURL
	opts.Token = cfg.TranscribeToken
	opts.Team = cfg.TranscribeTeam
	opts.CallType = cfg.TranscribeCallType
	opts.Timeout = cfg.TranscribeTimeout
	opts.DownloadAttempts = cfg.DownloadMaxAttempts
	opts.ForbiddenBackoff = cfg.DownloadBackoff
	return transcription.NewClient(opts, log)
}

func llmExtractor(ctx context.Context, cfg config.Config, log *logger.Logger) (*extractor.Extractor, error) {
	opts := extractor.DefaultOptions()
	opts.BaseURL = cfg.LLMBaseURL
	opts.APIKey = cfg.LLMAPIKey
	opts.Model = cfg.LLMModel
	opts.Timeout = cfg.LLMTimeout

	template, err := extractor.LoadTemplate(cfg.PromptFile)
	if err != nil {
		return nil, err
	}
	m, err := extractor.NewChatModel(ctx, opts)
	if err != nil {
		return nil, err
	}
	return extractor.New(m, template, opts, log), nil
}

func aggregateOptions(cfg config.Config) aggregator.Options {
	return aggregator.Options{
		TopSpecs: cfg.TopSpecs,
		SellerType: aggregator.SellerTypeRules{
			WholesaleAbovePercent: cfg.WholesaleMixPercent,
			RetailBelowPercent:    cfg.RetailMixPercent,
			RetailMinBuyers:       cfg.RetailMinBuyers,
		},
	}
}

func printReport(r *pipeline.Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(r)

	m := r.Tables.Matrix
	if m.Total() == 0 {
		return
	}
	pct := m.Percentages()
	fmt.Printf("\nseller \\ buyer   %8s %8s\n", types.IntentHigh, types.IntentLow)
	for i, label := range types.IntentLabels {
		fmt.Printf("%-16s %7.2f%% %7.2f%%\n", label, pct[i][0], pct[i][1])
	}
}
