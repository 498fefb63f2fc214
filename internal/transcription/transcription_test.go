package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/types"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"passthrough", "https://cdn.example.com/a.mp3", "https://cdn.example.com/a.mp3"},
		{"internal whitespace", " https://cdn.example.com/a b\t.mp3\n", "https://cdn.example.com/ab.mp3"},
		{"player page", "https://k.example.com/playsound.html?soundurl=https://cdn.example.com/r.wav", "https://cdn.example.com/r.wav"},
		{"player page camel", "https://k.example.com/playsound.html?x=1&soundUrl=https%3A%2F%2Fcdn.example.com%2Fr.wav", "https://cdn.example.com/r.wav"},
		{"player page without param", "https://k.example.com/playsound.html?x=1", "https://k.example.com/playsound.html?x=1"},
		{"blank", " \t ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeURL(tc.in); got != tc.want {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

type fakeService struct {
	publishes  int32
	downloads  int32
	statuses   int32
	forbidden  int32 // number of 403 replies before the text is served
	publishRaw string
}

func (f *fakeService) handler(t *testing.T, base *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.publishes, 1)
		if r.Header.Get("BearerToken") != "tok" || r.Header.Get("TeamName") != "team" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("callRecordingLink") != "https://cdn.example.com/r.wav" || r.FormValue("callType") != "PNS" ||
			r.FormValue("caller_id") != "B1" || r.FormValue("receiver_id") != "S1" {
			t.Errorf("unexpected form: %v", r.MultipartForm.Value)
		}
		if f.publishRaw != "" {
			_, _ = w.Write([]byte(f.publishRaw))
			return
		}
		_, _ = w.Write([]byte(`{"Code":200,"Status":"Success","Data":{"MediaId":"m-1","TranscriptionURL":"` + *base + `/text/m-1"}}`))
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.statuses, 1)
		if r.URL.Query().Get("mediaId") != "m-2" {
			t.Errorf("unexpected media id %q", r.URL.Query().Get("mediaId"))
		}
		status := "Processing"
		if n >= 2 {
			status = "Success"
		}
		_, _ = w.Write([]byte(`{"Code":200,"Status":"Success","Data":{"Status":"` + status + `","TranscriptionTextURL":"` + *base + `/text/m-2"}}`))
	})
	mux.HandleFunc("/text/", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.downloads, 1)
		if r.Header.Get("User-Agent") != "curl/7.88.1" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if n <= atomic.LoadInt32(&f.forbidden) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("denied"))
			return
		}
		_, _ = w.Write([]byte("Seller: rate is 120 per kg"))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeService) *Client {
	t.Helper()
	var base string
	srv := httptest.NewServer(f.handler(t, &base))
	t.Cleanup(srv.Close)
	base = srv.URL

	opts := DefaultOptions()
	opts.Endpoint = srv.URL + "/transcribe"
	opts.Token = "tok"
	opts.Team = "team"
	opts.PublishBackoff = 0
	opts.ForbiddenBackoff = 0
	opts.NetworkBackoff = 0
	opts.PollInterval = 0
	opts.PollAttempts = 5
	return NewClient(opts, logger.Discard())
}

const playerURL = "https://k.example.com/playsound.html?soundurl=https://cdn.example.com/r.wav"

func TestTranscribeSuccess(t *testing.T) {
	f := &fakeService{}
	c := newTestClient(t, f)

	res := c.Transcribe(context.Background(), playerURL, "B1", "S1")
	if !res.Success || res.Error != "" {
		t.Fatalf("expected success, got %+v", res)
	}
	d := res.Data
	if d.MediaID != "m-1" || d.Transcription != "Seller: rate is 120 per kg" ||
		d.NormalizedURL != "https://cdn.example.com/r.wav" || d.RawURL != playerURL ||
		d.CallerID != "B1" || d.ReceiverID != "S1" || !strings.HasSuffix(d.TranscriptionURL, "/text/m-1") {
		t.Fatalf("unexpected data %+v", d)
	}
}

func TestTranscribeEmptyURL(t *testing.T) {
	f := &fakeService{}
	c := newTestClient(t, f)
	res := c.Transcribe(context.Background(), "  \n", "B1", "S1")
	if res.Success || res.Error != "URL cannot be empty" || res.Data != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.publishes != 0 {
		t.Fatalf("empty url must not reach the service")
	}
}

func TestDownloadRetriesForbidden(t *testing.T) {
	f := &fakeService{forbidden: 1}
	c := newTestClient(t, f)
	res := c.Transcribe(context.Background(), playerURL, "B1", "S1")
	if !res.Success {
		t.Fatalf("expected success after one 403, got %+v", res)
	}
	if f.downloads != 2 {
		t.Fatalf("expected 2 download attempts, got %d", f.downloads)
	}
}

func TestDownloadGivesUpAfterMaxAttempts(t *testing.T) {
	f := &fakeService{forbidden: 100}
	c := newTestClient(t, f)
	res := c.Transcribe(context.Background(), playerURL, "B1", "S1")
	if res.Success || !strings.Contains(res.Error, "status=403") {
		t.Fatalf("expected 403 failure, got %+v", res)
	}
	if f.downloads != 2 {
		t.Fatalf("expected attempts capped at 2, got %d", f.downloads)
	}
}

func TestPublishAPIError(t *testing.T) {
	f := &fakeService{publishRaw: `{"Code":401,"Status":"Failure","Reason":"bad token"}`}
	c := newTestClient(t, f)
	res := c.Transcribe(context.Background(), playerURL, "B1", "S1")
	if res.Success || !strings.Contains(res.Error, "bad token") {
		t.Fatalf("expected api error, got %+v", res)
	}
	if f.downloads != 0 {
		t.Fatalf("nothing should be downloaded after a failed publish")
	}
}

func TestPublishClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	opts := DefaultOptions()
	opts.Endpoint = srv.URL + "/transcribe"
	opts.PublishBackoff = 0
	c := NewClient(opts, logger.Discard())

	res := c.Transcribe(context.Background(), "https://cdn.example.com/r.wav", "B1", "S1")
	if res.Success || calls != 1 {
		t.Fatalf("expected one failed publish, got %+v after %d calls", res, calls)
	}
}

func TestTranscribePollsQueuedMedia(t *testing.T) {
	f := &fakeService{publishRaw: `{"Code":200,"Status":"Success","Data":{"MediaId":"m-2","Status":"Queued"}}`}
	c := newTestClient(t, f)
	res := c.Transcribe(context.Background(), playerURL, "B1", "S1")
	if !res.Success || res.Data.MediaID != "m-2" || !strings.HasSuffix(res.Data.TranscriptionURL, "/text/m-2") {
		t.Fatalf("expected polled success, got %+v", res)
	}
	if f.statuses != 2 {
		t.Fatalf("expected 2 status checks, got %d", f.statuses)
	}
}

func TestBatchLinesRoundTrip(t *testing.T) {
	recs := []types.CallRecord{
		{CallID: "12,345", CallerID: "B1", ReceiverID: "S1", RecordingURL: "https://x/1"},
		{CallID: "2", CallerID: "B2", ReceiverID: "S2"},
		{CallID: "3", CallerID: "B3", ReceiverID: "S3", RecordingURL: "https://x/3"},
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	lines := []Line{
		NewLine(1, recs[0], Result{Success: true, Data: &ResultData{MediaID: "m", Transcription: "hello <b>"}}),
		EmptyURLLine(2, recs[1]),
		NewLine(3, recs[2], Result{Error: "boom"}),
	}
	for _, l := range lines {
		if err := w.Write(l); err != nil {
			t.Fatal(err)
		}
	}
	if strings.Count(buf.String(), "\n") != 3 || !strings.Contains(buf.String(), `"hello <b>"`) {
		t.Fatalf("unexpected jsonl output %q", buf.String())
	}
	var first map[string]interface{}
	_ = json.Unmarshal([]byte(strings.SplitN(buf.String(), "\n", 2)[0]), &first)
	if first["pns_call_recording_url"] != "https://x/1" {
		t.Fatalf("recording url key missing: %v", first)
	}

	got, err := ReadLines(strings.NewReader(buf.String() + "\n\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1].Error != "Empty URL" || got[2].NormalizedURL != "https://x/3" {
		t.Fatalf("unexpected lines %+v", got)
	}

	targets := []types.CallRecord{{CallID: "12345"}, {CallID: "3"}, {CallID: "12,345", Transcription: "keep"}}
	if n := Merge(targets, got); n != 1 {
		t.Fatalf("expected one merged transcript, got %d", n)
	}
	if targets[0].Transcription != "hello <b>" || targets[1].Transcription != "" || targets[2].Transcription != "keep" {
		t.Fatalf("unexpected merge result %+v", targets)
	}
}
