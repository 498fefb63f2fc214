// Package extractor asks a chat model for the structured extraction of one
// call transcript.
package extractor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rotisserie/eris"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/types"
)

var (
	ErrMalformedOutput = eris.New("extractor: model output is not a valid extraction")
	ErrEmptyTranscript = eris.New("extractor: empty transcript")
)

// Generator is the part of a chat model the extractor needs.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float32

	MaxAttempts int
	Backoff     time.Duration
}

func DefaultOptions() Options {
	return Options{
		Timeout:     60 * time.Second,
		Temperature: 0.1,
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
	}
}

// NewChatModel builds an OpenAI-compatible chat model for opts.
func NewChatModel(ctx context.Context, opts Options) (Generator, error) {
	if opts.APIKey == "" {
		return nil, eris.New("extractor: LLM_API_KEY not set")
	}
	temp := opts.Temperature
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      opts.APIKey,
		BaseURL:     opts.BaseURL,
		Model:       opts.Model,
		Timeout:     opts.Timeout,
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extractor: create chat model")
	}
	return cm, nil
}

type Extractor struct {
	model    Generator
	template string
	opts     Options
	log      *logger.Logger
}

func New(m Generator, template string, opts Options, log *logger.Logger) *Extractor {
	if template == "" {
		template = DefaultTemplate
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Extractor{model: m, template: template, opts: opts, log: log.WithComponent("extractor")}
}

// Extract returns the parsed extraction and the raw JSON it came from.
// Model errors are retried with backoff; output that does not parse is
// reported as ErrMalformedOutput without a retry.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*types.CallExtraction, []byte, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, nil, ErrEmptyTranscript
	}
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(BuildPrompt(e.template, transcript)),
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.opts.Backoff
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = time.Millisecond
	}
	exp.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.opts.MaxAttempts-1)), ctx)

	var content string
	op := func() error {
		resp, err := e.model.Generate(ctx, msgs)
		if err != nil {
			return err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return eris.New("extractor: empty model response")
		}
		content = resp.Content
		return nil
	}
	notify := func(err error, wait time.Duration) {
		e.log.WithError(err).WithField("wait", wait.String()).Warn("llm call failed, retrying")
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, nil, eris.Wrap(err, "extractor: llm call failed")
	}

	raw := extractJSON(content)
	if raw == "" {
		e.log.WithField("response", truncate(content, 300)).Warn("no JSON object in model output")
		return nil, nil, eris.Wrap(ErrMalformedOutput, "no JSON object found")
	}
	var ext types.CallExtraction
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		e.log.WithError(err).WithField("response", truncate(raw, 300)).Warn("model output does not decode")
		return nil, []byte(raw), eris.Wrapf(ErrMalformedOutput, "decode: %v", err)
	}
	e.log.WithField("products", len(ext.Products)).Debug("extraction parsed")
	return &ext, []byte(raw), nil
}

// extractJSON strips markdown fences and returns the first balanced JSON
// object in s, or "" when there is none. Braces inside strings are ignored.
func extractJSON(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, fence := range []string{"```json", "```JSON", "```"} {
		s = strings.ReplaceAll(s, fence, "")
	}
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
