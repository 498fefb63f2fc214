package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"sales-insights-go/internal/aggregator"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/store"
	"sales-insights-go/internal/tables"
	"sales-insights-go/internal/types"
)

func init() { gin.SetMode(gin.TestMode) }

func writeOutputs(t *testing.T, dir string) {
	t.Helper()
	price := 80.0
	calls := []types.CallLevelRecord{
		{CallID: "12345", BuyerIntentLabel: "High", SellerIntentLabel: "Low", ProductName: "Pipe", FinalPrice: &price,
			DeliveryResponsibility: "buyer", SellerDeliversToBuyerLocation: "no"},
		{CallID: "777", BuyerIntentLabel: "High", SellerIntentLabel: "High", ProductName: "Valve"},
	}
	var m types.ConfusionMatrix
	for _, c := range calls {
		m.Add(c.SellerIntentLabel, c.BuyerIntentLabel)
	}
	tabs := aggregator.Tables{
		Flat: []types.FlatRow{
			{CallID: "12345", ProductID: "P1", ProductName: "Pipe"},
			{CallID: "12345", ProductID: "P1", ProductName: "Pipe"},
			{CallID: "777", ProductID: "P2", ProductName: "Valve"},
		},
		Calls:  calls,
		Matrix: m,
	}
	if _, err := tables.WriteAll(dir, tables.Encode(tabs)); err != nil {
		t.Fatalf("write tables: %v", err)
	}
}

type harness struct {
	h      *Handler
	router *gin.Engine
	ledger *store.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	writeOutputs(t, dir)
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	log := logger.Discard()
	h := NewHandler(dir, st, log)
	if err := h.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return &harness{h: h, router: NewRouter(h, log), ledger: st}
}

func (hs *harness) do(t *testing.T, method, path string) (int, Response, json.RawMessage) {
	t.Helper()
	w := httptest.NewRecorder()
	hs.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var env struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, w.Body.String())
	}
	return w.Code, env.Response, env.Data
}

func TestHealth(t *testing.T) {
	hs := newHarness(t)
	code, resp, _ := hs.do(t, http.MethodGet, "/healthz")
	if code != http.StatusOK || resp.Code != 0 {
		t.Fatalf("health: %d %+v", code, resp)
	}
}

func TestTables(t *testing.T) {
	hs := newHarness(t)

	_, _, data := hs.do(t, http.MethodGet, "/api/v1/tables")
	var names []string
	_ = json.Unmarshal(data, &names)
	if len(names) != 7 || names[0] != "extracted_products" {
		t.Fatalf("unexpected tables %v", names)
	}

	code, _, data := hs.do(t, http.MethodGet, "/api/v1/tables/extracted_products?offset=1&limit=1")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	var page struct {
		Total int                 `json:"total"`
		Rows  []map[string]string `json:"rows"`
	}
	_ = json.Unmarshal(data, &page)
	if page.Total != 3 || len(page.Rows) != 1 || page.Rows[0]["call_id"] != "12345" {
		t.Fatalf("unexpected page %+v", page)
	}

	if code, resp, _ := hs.do(t, http.MethodGet, "/api/v1/tables/nope"); code != http.StatusNotFound || resp.Code != -1 {
		t.Fatalf("expected 404, got %d %+v", code, resp)
	}
	if code, _, _ := hs.do(t, http.MethodGet, "/api/v1/tables/call_level?limit=x"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestCallLookupNormalizesID(t *testing.T) {
	hs := newHarness(t)
	code, _, data := hs.do(t, http.MethodGet, "/api/v1/calls/12345.0")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	var v CallView
	_ = json.Unmarshal(data, &v)
	if v.CallID != "12345" || len(v.Calls) != 1 || len(v.Products) != 2 {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Calls[0].FinalPrice == nil || *v.Calls[0].FinalPrice != 80 {
		t.Fatalf("unexpected final price %v", v.Calls[0].FinalPrice)
	}
	if code, _, _ := hs.do(t, http.MethodGet, "/api/v1/calls/999"); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestConfusionAndSegments(t *testing.T) {
	hs := newHarness(t)
	_, _, data := hs.do(t, http.MethodGet, "/api/v1/confusion")
	var out struct {
		Counts      [2][2]int     `json:"counts"`
		Percentages [2][2]float64 `json:"percentages"`
		Total       int           `json:"total"`
	}
	_ = json.Unmarshal(data, &out)
	// rows are seller labels: High seller / High buyer, Low seller / High buyer
	if out.Total != 2 || out.Counts[0][0] != 1 || out.Counts[1][0] != 1 || out.Percentages[1][0] != 50 {
		t.Fatalf("unexpected matrix %+v", out)
	}

	_, _, data = hs.do(t, http.MethodGet, "/api/v1/segments?buyer=high&seller=LOW")
	var seg struct {
		Count int                     `json:"count"`
		Calls []types.CallLevelRecord `json:"calls"`
	}
	_ = json.Unmarshal(data, &seg)
	if seg.Count != 1 || seg.Calls[0].CallID != "12345" {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if code, _, _ := hs.do(t, http.MethodGet, "/api/v1/segments?buyer=maybe&seller=Low"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestActions(t *testing.T) {
	hs := newHarness(t)
	_, _, data := hs.do(t, http.MethodGet, "/api/v1/actions")
	var cards []struct {
		Segment string `json:"segment"`
		Calls   int    `json:"calls"`
	}
	_ = json.Unmarshal(data, &cards)
	if len(cards) != 3 || cards[0].Segment != "missed_opportunity" || cards[2].Segment != "shipwith" {
		t.Fatalf("unexpected cards %+v", cards)
	}
}

func TestRuns(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := hs.ledger.StartRun(ctx, store.Run{RunID: "r1", Command: "run", StartedAt: t0}); err != nil {
		t.Fatal(err)
	}
	if err := hs.ledger.RecordCall(ctx, "r1", store.CallOutcome{Stage: "analyze", CallID: "12345", Outcome: "ok"}, t0); err != nil {
		t.Fatal(err)
	}

	_, _, data := hs.do(t, http.MethodGet, "/api/v1/runs")
	var runs []store.Run
	_ = json.Unmarshal(data, &runs)
	if len(runs) != 1 || runs[0].RunID != "r1" {
		t.Fatalf("unexpected runs %+v", runs)
	}

	_, _, data = hs.do(t, http.MethodGet, "/api/v1/runs/r1/calls")
	var calls []store.CallOutcome
	_ = json.Unmarshal(data, &calls)
	if len(calls) != 1 || calls[0].CallID != "12345" {
		t.Fatalf("unexpected calls %+v", calls)
	}

	if code, _, _ := hs.do(t, http.MethodGet, "/api/v1/runs?limit=0"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestRefresh(t *testing.T) {
	hs := newHarness(t)
	calls := 0
	hs.h.SetRefresher(func(ctx context.Context) error {
		calls++
		return nil
	})
	if code, _, _ := hs.do(t, http.MethodPost, "/api/v1/refresh"); code != http.StatusOK || calls != 1 {
		t.Fatalf("refresh: code=%d calls=%d", code, calls)
	}

	hs.h.SetRefresher(func(ctx context.Context) error { return errors.New("boom") })
	if code, _, _ := hs.do(t, http.MethodPost, "/api/v1/refresh"); code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	// the previous snapshot is still served
	if _, ok := hs.h.snapshot().Tables["call_level"]; !ok {
		t.Fatal("snapshot lost after failed refresh")
	}
}

func TestLoadSnapshotEmptyDir(t *testing.T) {
	s, err := LoadSnapshot(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Tables) != 0 || s.Matrix.Total() != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}
}
