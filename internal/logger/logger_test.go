package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"WARN":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"":      logrus.InfoLevel,
		"bogus": logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONFormatterOutsideLocal(t *testing.T) {
	l := New("production", "info")
	if _, ok := l.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSON formatter, got %T", l.Logger.Formatter)
	}
	if _, ok := New("local", "").Logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter for local")
	}
}

func TestScopedFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("test", "debug")
	l.Logger.SetOutput(&buf)

	l.WithRun("run-1").WithComponent("pipeline").WithError(errors.New("boom")).Info("stage done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["run_id"] != "run-1" || entry["component"] != "pipeline" || entry["error"] != "boom" {
		t.Fatalf("missing scoped fields: %v", entry)
	}
}

func TestWithRequestKeepsHeaderID(t *testing.T) {
	req := httptest.NewRequest("GET", "/tables/seller", nil)
	req.Header.Set("X-Request-ID", "abc")
	e := Discard().WithRequest(req)
	if e.Data["req_id"] != "abc" || e.Data["path"] != "/tables/seller" {
		t.Fatalf("unexpected fields %v", e.Data)
	}
}
