// Package transcription turns call recording URLs into transcript text via
// the speech-to-text service: publish the recording, wait for the transcript
// URL, then download the text.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"sales-insights-go/internal/logger"
)

var ErrEmptyURL = eris.New("URL cannot be empty")

const playerMarker = "playsound.html"

type PublishSuccessResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId          string `json:"MediaId"`
		Status           string `json:"Status"`
		LanguageId       int    `json:"LanguageId"`
		TranscriptionURL string `json:"TranscriptionURL"`
		WordsCount       int    `json:"WordsCount"`
	} `json:"Data"`
	Reason   string `json:"Reason,omitempty"`
	UniqueId string `json:"UniqueId,omitempty"`
}

type StatusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		AudioURL             string `json:"AudioURL"`
		LanguageId           int    `json:"LanguageId"`
		Status               string `json:"Status"`
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
		WordsCount           int    `json:"WordsCount"`
	} `json:"Data"`
	Reason   string `json:"Reason,omitempty"`
	UniqueId string `json:"UniqueId,omitempty"`
}

// Options configures a Client. Zero durations are allowed and mean "no wait".
type Options struct {
	Endpoint       string // full publish URL, e.g. http://host/transcribe
	StatusEndpoint string // defaults to the publish URL with /getstatus in place of /transcribe
	Token          string
	Team           string
	CallType       string
	Timeout        time.Duration

	PublishAttempts int
	PublishBackoff  time.Duration

	// Download retries back off linearly: step×attempt, with a longer step
	// after a 403 than after a network error.
	DownloadAttempts int
	ForbiddenBackoff time.Duration
	NetworkBackoff   time.Duration

	PollInterval time.Duration
	PollAttempts int
}

func DefaultOptions() Options {
	return Options{
		CallType:         "PNS",
		Timeout:          60 * time.Second,
		PublishAttempts:  3,
		PublishBackoff:   time.Second,
		DownloadAttempts: 2,
		ForbiddenBackoff: 5 * time.Second,
		NetworkBackoff:   2 * time.Second,
		PollInterval:     1500 * time.Millisecond,
		PollAttempts:     40,
	}
}

type Client struct {
	opts Options
	http *http.Client
	log  *logger.Logger
}

func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.CallType == "" {
		opts.CallType = "PNS"
	}
	if opts.StatusEndpoint == "" {
		opts.StatusEndpoint = strings.TrimSuffix(strings.TrimRight(opts.Endpoint, "/"), "/transcribe") + "/getstatus"
	}
	if opts.PublishAttempts < 1 {
		opts.PublishAttempts = 1
	}
	if opts.DownloadAttempts < 1 {
		opts.DownloadAttempts = 1
	}
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
		log:  log.WithComponent("transcription"),
	}
}

// ResultData is the payload of a successful transcription.
type ResultData struct {
	MediaID          string `json:"media_id"`
	TranscriptionURL string `json:"transcription_url"`
	Transcription    string `json:"transcription"`
	NormalizedURL    string `json:"normalized_url"`
	RawURL           string `json:"raw_url"`
	CallerID         string `json:"caller_id"`
	ReceiverID       string `json:"receiver_id"`
}

// Result is the outcome for one recording. Exactly one of Data and Error is set.
type Result struct {
	Success bool        `json:"success"`
	Data    *ResultData `json:"data"`
	Error   string      `json:"error,omitempty"`
}

// SanitizeURL removes every whitespace character, including ones inside the URL.
func SanitizeURL(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// NormalizeURL sanitizes a recording URL and unwraps player pages to the
// audio file they embed (the soundurl or soundUrl query parameter).
func NormalizeURL(raw string) string {
	u := SanitizeURL(raw)
	if u == "" || !strings.Contains(u, playerMarker) {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := parsed.Query()
	for _, key := range []string{"soundurl", "soundUrl"} {
		if v := SanitizeURL(q.Get(key)); v != "" {
			return v
		}
	}
	return u
}

// Transcribe runs one recording end to end. Failures are reported in the
// Result, never as a panic or a returned error, so a batch can move on.
func (c *Client) Transcribe(ctx context.Context, rawURL, callerID, receiverID string) Result {
	log := c.log.WithField("raw_url", rawURL)
	normalized := NormalizeURL(rawURL)
	if normalized == "" {
		log.Warn("empty recording url")
		return Result{Error: ErrEmptyURL.Error()}
	}
	if normalized != SanitizeURL(rawURL) {
		log.WithField("normalized_url", normalized).Info("extracted audio url from player page")
	}

	mediaID, transURL, err := c.publish(ctx, normalized, callerID, receiverID)
	if err == nil && transURL == "" {
		transURL, err = c.poll(ctx, mediaID)
	}
	var text string
	if err == nil {
		text, err = c.download(ctx, transURL)
	}
	if err != nil {
		log.WithError(err).Error("transcription failed")
		return Result{Error: err.Error()}
	}

	log.WithFields(map[string]interface{}{
		"media_id": mediaID,
		"chars":    len(text),
	}).Info("transcription completed")
	return Result{
		Success: true,
		Data: &ResultData{
			MediaID:          mediaID,
			TranscriptionURL: transURL,
			Transcription:    text,
			NormalizedURL:    normalized,
			RawURL:           rawURL,
			CallerID:         callerID,
			ReceiverID:       receiverID,
		},
	}
}

func (c *Client) publish(ctx context.Context, recordingURL, callerID, receiverID string) (string, string, error) {
	if c.opts.Endpoint == "" {
		return "", "", eris.New("transcription: endpoint not configured")
	}
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	_ = w.WriteField("caller_id", callerID)
	_ = w.WriteField("receiver_id", receiverID)
	_ = w.WriteField("callRecordingLink", recordingURL)
	_ = w.WriteField("callType", c.opts.CallType)
	_ = w.Close()
	body := b.Bytes()

	newReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("BearerToken", c.opts.Token)
		req.Header.Set("TeamName", c.opts.Team)
		return req, nil
	}

	var resp PublishSuccessResponse
	if err := c.doJSON(ctx, newReq, &resp); err != nil {
		return "", "", eris.Wrap(err, "transcription: publish")
	}
	if resp.Code != 200 || resp.Status != "Success" {
		return "", "", eris.Errorf("transcription: API error: code=%d status=%s reason=%s", resp.Code, resp.Status, resp.Reason)
	}
	c.log.WithField("media_id", resp.Data.MediaId).Debug("transcription requested")
	return resp.Data.MediaId, resp.Data.TranscriptionURL, nil
}

// poll waits for a queued transcription to finish and returns its text URL.
func (c *Client) poll(ctx context.Context, mediaID string) (string, error) {
	if mediaID == "" {
		return "", eris.New("transcription: publish returned neither media id nor transcript url")
	}
	u, err := url.Parse(c.opts.StatusEndpoint)
	if err != nil {
		return "", eris.Wrap(err, "transcription: status endpoint")
	}
	q := u.Query()
	q.Set("mediaId", mediaID)
	u.RawQuery = q.Encode()

	for i := 0; i < c.opts.PollAttempts; i++ {
		if err := sleep(ctx, c.opts.PollInterval); err != nil {
			return "", err
		}
		newReq := func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		}
		var s StatusResponse
		if err := c.doJSON(ctx, newReq, &s); err != nil {
			c.log.WithError(err).Debug("status check failed")
			continue
		}
		switch s.Data.Status {
		case "Success":
			return s.Data.TranscriptionTextURL, nil
		case "Failed":
			return "", eris.Errorf("transcription: media %s failed: %s", mediaID, s.Reason)
		}
	}
	return "", eris.Errorf("transcription: media %s not ready after %d polls", mediaID, c.opts.PollAttempts)
}

// linearBackOff waits step×n before the n-th retry. The caller picks step
// per failure.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

// download fetches the transcript text the way a plain curl call would.
func (c *Client) download(ctx context.Context, textURL string) (string, error) {
	if textURL == "" {
		return "", eris.New("transcription: empty transcript url")
	}
	lb := &linearBackOff{}
	bo := backoff.WithContext(backoff.WithMaxRetries(lb, uint64(c.opts.DownloadAttempts-1)), ctx)

	var text string
	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, textURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "curl/7.88.1")
		req.Header.Set("Accept", "*/*")

		resp, err := c.http.Do(req)
		if err != nil {
			lb.step = c.opts.NetworkBackoff
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			lb.step = c.opts.NetworkBackoff
			return err
		}
		if resp.StatusCode == http.StatusForbidden {
			lb.step = c.opts.ForbiddenBackoff
			return fmt.Errorf("status=%d body_snippet=%q", resp.StatusCode, snippet(body))
		}
		if resp.StatusCode >= 300 {
			lb.step = c.opts.NetworkBackoff
			return fmt.Errorf("status=%d body_snippet=%q", resp.StatusCode, snippet(body))
		}
		text = string(body)
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithFields(map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": c.opts.DownloadAttempts,
			"wait":         wait.String(),
		}).Warn("transcript download failed, backing off")
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return "", eris.Wrap(err, "transcription: failed to download transcription")
	}
	return text, nil
}

// doJSON sends a request built by newReq and decodes the JSON reply, retrying
// network errors and 5xx replies with exponential backoff.
func (c *Client) doJSON(ctx context.Context, newReq func() (*http.Request, error), target interface{}) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.PublishBackoff
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = time.Millisecond
	}
	exp.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.opts.PublishAttempts-1)), ctx)

	op := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: status=%d body=%q", resp.StatusCode, snippet(body))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("client error: status=%d body=%q", resp.StatusCode, snippet(body)))
		}
		if len(body) == 0 {
			return backoff.Permanent(eris.New("empty body"))
		}
		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(fmt.Errorf("json decode error: %v body=%q", err, snippet(body)))
		}
		return nil
	}
	return backoff.Retry(op, bo)
}

func snippet(b []byte) string {
	if len(b) > 200 {
		b = b[:200]
	}
	return string(b)
}

func sleep(ctx context.Context, d time.Duration) error {
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
