package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rotisserie/eris"
	"sales-insights-go/internal/logger"
)

type fakeModel struct {
	replies []string
	errs    []error
	calls   int
	last    []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	i := f.calls
	f.calls++
	f.last = in
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return schema.AssistantMessage(f.replies[i], nil), nil
}

func testOptions() Options {
	o := DefaultOptions()
	o.Backoff = 0
	return o
}

const reply = "```json\n" + `{
  "buyer_profile": {"buyer_type": "trader", "intent_for_purchase": "upgrade"},
  "call_insights": {"buyer_sentiment": {"value": "positive"}, "seller_sentiment": "neutral"},
  "products_discussed": [{
    "product_id": "P1",
    "product_name": "SS Pipe {304}",
    "prices_discussed": {"price_entries": [{"price_value": 100}, {"price_value": "80"}]}
  }]
}` + "\n```"

func TestExtractParsesFencedReply(t *testing.T) {
	m := &fakeModel{replies: []string{reply}}
	e := New(m, "", testOptions(), logger.Discard())

	ext, raw, err := e.Extract(context.Background(), "Buyer: rate?")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(raw) == 0 || strings.Contains(string(raw), "```") {
		t.Fatalf("raw JSON not cleaned: %q", raw)
	}
	if len(ext.Products) != 1 || ext.Products[0].ProductName.String() != "SS Pipe {304}" {
		t.Fatalf("unexpected products %+v", ext.Products)
	}
	entries := ext.Products[0].PricesDiscussed.PriceEntries
	if len(entries) != 2 || entries[0].PriceValue.String() != "100" || entries[1].PriceValue.String() != "80" {
		t.Fatalf("unexpected price entries %+v", entries)
	}
	if ext.CallInsights.SellerSentiment.Label() != "neutral" {
		t.Fatalf("bare sentiment value not accepted")
	}

	if len(m.last) != 2 || m.last[0].Role != schema.System || m.last[1].Role != schema.User {
		t.Fatalf("unexpected messages %+v", m.last)
	}
	if !strings.HasSuffix(m.last[1].Content, "# TRANSCRIPTION TO ANALYZE:\n\nBuyer: rate?") {
		t.Fatalf("transcript not appended to prompt: %q", m.last[1].Content)
	}
}

func TestExtractRetriesModelErrors(t *testing.T) {
	m := &fakeModel{replies: []string{reply}, errs: []error{errors.New("503"), errors.New("timeout")}}
	e := New(m, "", testOptions(), logger.Discard())
	if _, _, err := e.Extract(context.Background(), "x"); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if m.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", m.calls)
	}
}

func TestExtractGivesUp(t *testing.T) {
	boom := errors.New("down")
	m := &fakeModel{replies: []string{reply}, errs: []error{boom, boom, boom, boom}}
	e := New(m, "", testOptions(), logger.Discard())
	_, _, err := e.Extract(context.Background(), "x")
	if err == nil || eris.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected a call failure, got %v", err)
	}
	if m.calls != 3 {
		t.Fatalf("expected attempts capped at 3, got %d", m.calls)
	}
}

func TestExtractMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"prose":      "Sorry, I cannot help with that.",
		"bad schema": `{"products_discussed": {"not": "a list"}}`,
		"unbalanced": `{"buyer_profile": {`,
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			m := &fakeModel{replies: []string{out}}
			e := New(m, "", testOptions(), logger.Discard())
			_, _, err := e.Extract(context.Background(), "x")
			if !eris.Is(err, ErrMalformedOutput) {
				t.Fatalf("expected ErrMalformedOutput, got %v", err)
			}
			if m.calls != 1 {
				t.Fatalf("malformed output must not be retried, got %d calls", m.calls)
			}
		})
	}
}

func TestExtractEmptyTranscript(t *testing.T) {
	m := &fakeModel{replies: []string{reply}}
	e := New(m, "", testOptions(), logger.Discard())
	if _, _, err := e.Extract(context.Background(), "  "); !eris.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if m.calls != 0 {
		t.Fatalf("model must not be called for an empty transcript")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct{ in, want string }{
		{`noise {"a": "}"} trailing {"b":1}`, `{"a": "}"}`},
		{"```json\n{\"a\": {\"b\": \"\\\"{\"}}\n```", `{"a": {"b": "\"{"}}`},
		{"nothing here", ""},
	}
	for _, tc := range cases {
		if got := extractJSON(tc.in); got != tc.want {
			t.Fatalf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadTemplate(t *testing.T) {
	if tpl, err := LoadTemplate(""); err != nil || tpl != DefaultTemplate {
		t.Fatalf("expected default template, err=%v", err)
	}
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("  custom prompt\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tpl, err := LoadTemplate(path)
	if err != nil || tpl != "custom prompt" {
		t.Fatalf("unexpected template %q err=%v", tpl, err)
	}
	if got := BuildPrompt(tpl, "T"); got != "custom prompt\n\n# TRANSCRIPTION TO ANALYZE:\n\nT" {
		t.Fatalf("unexpected prompt %q", got)
	}
	if _, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}

func TestNewChatModelRequiresKey(t *testing.T) {
	if _, err := NewChatModel(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
