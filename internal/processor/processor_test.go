package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"sales-insights-go/internal/extractor"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/transcription"
	"sales-insights-go/internal/types"
)

type fakeTranscriber struct {
	res   transcription.Result
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, rawURL, callerID, receiverID string) transcription.Result {
	f.calls++
	return f.res
}

type fakeExtractor struct {
	ext   *types.CallExtraction
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, transcript string) (*types.CallExtraction, []byte, error) {
	f.calls++
	return f.ext, nil, f.err
}

func twoProducts() *types.CallExtraction {
	return &types.CallExtraction{
		CallInsights: &types.CallInsights{SellerSentiment: &types.Labeled{Value: types.S("positive")}},
		Products: []types.ProductDiscussion{
			{ProductID: types.S("P1"), PricesDiscussed: &types.PricesDiscussed{PriceEntries: []types.PriceEntry{
				{PriceValue: types.S("100")}, {PriceValue: types.S("80")},
			}}},
			{ProductID: types.S("P2")},
		},
	}
}

var rec = types.CallRecord{CallID: "C1", CallerID: "B1", ReceiverID: "S1", Transcription: "hello"}

func TestAnalyzeCallFlattens(t *testing.T) {
	p := New(nil, &fakeExtractor{ext: twoProducts()}, logger.Discard())
	res := p.AnalyzeCall(context.Background(), rec)
	if res.Outcome != OutcomeOK || res.Error != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("expected 2 price rows + 1 priceless product row, got %d", len(res.Rows))
	}
	for _, r := range res.Rows {
		if r.CallID != "C1" || r.SellerID != "S1" || r.BuyerID != "B1" || r.SellerSentiment != "positive" {
			t.Fatalf("call attributes not carried: %+v", r)
		}
	}
}

func TestAnalyzeCallFailuresYieldPlaceholder(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{"malformed", eris.Wrap(extractor.ErrMalformedOutput, "decode"), OutcomeMalformedOutput},
		{"model down", errors.New("connection refused"), OutcomeExtractionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := New(nil, &fakeExtractor{err: tc.err}, logger.Discard())
			res := p.AnalyzeCall(context.Background(), rec)
			if res.Outcome != tc.want || res.Outcome.Kind() != "failure" || res.Error == "" {
				t.Fatalf("unexpected result %+v", res)
			}
			if len(res.Rows) != 1 || res.Rows[0] != (types.FlatRow{CallID: "C1", SellerID: "S1", BuyerID: "B1"}) {
				t.Fatalf("expected a single placeholder row, got %+v", res.Rows)
			}
		})
	}
}

func TestAnalyzeCallNoProductsYieldsNoRows(t *testing.T) {
	ext := &types.CallExtraction{CallInsights: &types.CallInsights{BuyerSentiment: &types.Labeled{Value: types.S("negative")}}}
	p := New(nil, &fakeExtractor{ext: ext}, logger.Discard())
	res := p.AnalyzeCall(context.Background(), rec)
	if res.Outcome != OutcomeNoProducts || res.Outcome.Kind() != "skip" {
		t.Fatalf("unexpected outcome %s", res.Outcome)
	}
	if len(res.Rows) != 0 || res.Error != "" {
		t.Fatalf("expected no rows and no error, got %+v", res)
	}
}

func TestTranscribeCall(t *testing.T) {
	ok := &fakeTranscriber{res: transcription.Result{Success: true, Data: &transcription.ResultData{Transcription: "text", MediaID: "m"}}}
	p := New(ok, &fakeExtractor{}, logger.Discard())

	withURL := types.CallRecord{CallID: "C2", CallerID: "B", ReceiverID: "S", RecordingURL: "https://x/a.mp3"}
	got, line, outcome := p.TranscribeCall(context.Background(), 4, withURL)
	if outcome != OutcomeOK || got.Transcription != "text" || line.Index != 4 || line.MediaID != "m" {
		t.Fatalf("unexpected transcription %+v %+v %s", got, line, outcome)
	}

	_, line, outcome = p.TranscribeCall(context.Background(), 5, types.CallRecord{CallID: "C3", RecordingURL: " \t"})
	if outcome != OutcomeNoInput || line.Error != "Empty URL" {
		t.Fatalf("expected empty url skip, got %+v %s", line, outcome)
	}

	_, _, outcome = p.TranscribeCall(context.Background(), 6, rec)
	if outcome != OutcomeAlreadyTranscribed {
		t.Fatalf("expected passthrough, got %s", outcome)
	}
	if ok.calls != 1 {
		t.Fatalf("service should be called once, got %d", ok.calls)
	}
}

func TestProcessCallTranscriptionFailure(t *testing.T) {
	tr := &fakeTranscriber{res: transcription.Result{Error: "status=403"}}
	ex := &fakeExtractor{ext: twoProducts()}
	p := New(tr, ex, logger.Discard())

	res := p.ProcessCall(context.Background(), types.CallRecord{CallID: "C4", CallerID: "B", ReceiverID: "S", RecordingURL: "https://x"})
	if res.Outcome != OutcomeTranscriptionFailed || res.Error != "status=403" || len(res.Rows) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if ex.calls != 0 {
		t.Fatalf("extractor must not run without a transcript")
	}
}

func TestProcessCallEndToEnd(t *testing.T) {
	tr := &fakeTranscriber{res: transcription.Result{Success: true, Data: &transcription.ResultData{Transcription: "text"}}}
	p := New(tr, &fakeExtractor{ext: twoProducts()}, logger.Discard())
	res := p.ProcessCall(context.Background(), types.CallRecord{CallID: "C5", RecordingURL: "https://x"})
	if res.Outcome != OutcomeOK || len(res.Rows) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}
