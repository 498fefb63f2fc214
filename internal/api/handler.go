// Package api serves the persisted tables, the intent matrix, action cards
// and the run ledger over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"sales-insights-go/internal/actionable"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/store"
	"sales-insights-go/internal/types"
)

// Ledger is the read side of the run ledger.
type Ledger interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	Calls(ctx context.Context, runID string) ([]store.CallOutcome, error)
	Health(ctx context.Context) error
}

type Handler struct {
	dir     string
	ledger  Ledger
	log     *logger.Logger
	refresh func(ctx context.Context) error
	now     func() time.Time

	mu   sync.RWMutex
	snap *Snapshot
}

// NewHandler serves tables from dir. ledger may be nil.
func NewHandler(dir string, ledger Ledger, log *logger.Logger) *Handler {
	return &Handler{
		dir:    dir,
		ledger: ledger,
		log:    log.WithComponent("api"),
		now:    time.Now,
		snap:   &Snapshot{Tables: map[string]Table{}},
	}
}

// SetRefresher installs the job that rebuilds the tables before a reload.
func (h *Handler) SetRefresher(f func(ctx context.Context) error) { h.refresh = f }

// Reload swaps in a fresh snapshot of the output directory. On error the
// previous snapshot keeps being served.
func (h *Handler) Reload() error {
	s, err := LoadSnapshot(h.dir, h.now())
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.snap = s
	h.mu.Unlock()
	h.log.WithField("tables", len(s.Tables)).WithField("calls", len(s.Calls)).Info("snapshot loaded")
	return nil
}

// Refresh runs the refresher, if any, then reloads.
func (h *Handler) Refresh(ctx context.Context) error {
	if h.refresh != nil {
		if err := h.refresh(ctx); err != nil {
			return err
		}
	}
	return h.Reload()
}

func (h *Handler) snapshot() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

func (h *Handler) Health(c *gin.Context) {
	s := h.snapshot()
	out := gin.H{"tables": len(s.Tables), "loaded_at": s.LoadedAt}
	if h.ledger != nil {
		if err := h.ledger.Health(c.Request.Context()); err != nil {
			h.log.WithError(err).Warn("ledger unhealthy")
			Fail(c, http.StatusServiceUnavailable, "ledger unavailable")
			return
		}
	}
	Success(c, out)
}

func (h *Handler) ListTables(c *gin.Context) {
	Success(c, h.snapshot().TableNames())
}

// GetTable returns one table, paged by optional offset and limit.
func (h *Handler) GetTable(c *gin.Context) {
	t, ok := h.snapshot().Tables[c.Param("name")]
	if !ok {
		Fail(c, http.StatusNotFound, "table not found")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		Fail(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		Fail(c, http.StatusBadRequest, err.Error())
		return
	}
	rows := t.Rows
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	Success(c, gin.H{"columns": t.Columns, "total": len(t.Rows), "rows": rows})
}

func (h *Handler) GetCall(c *gin.Context) {
	v, ok := h.snapshot().Call(c.Param("id"))
	if !ok {
		Fail(c, http.StatusNotFound, "call not found")
		return
	}
	Success(c, v)
}

// Confusion returns raw counts and percentages over the grand total. Rows are
// seller labels and columns buyer labels.
func (h *Handler) Confusion(c *gin.Context) {
	m := h.snapshot().Matrix
	Success(c, gin.H{
		"rows":        "Seller_Intent_Label",
		"columns":     "Buyer_Intent_Label",
		"labels":      types.IntentLabels,
		"counts":      m.Counts,
		"percentages": m.Percentages(),
		"total":       m.Total(),
	})
}

// Segments lists the calls of one matrix cell, e.g. ?buyer=High&seller=Low.
func (h *Handler) Segments(c *gin.Context) {
	buyer, ok := label(c.Query("buyer"))
	if !ok {
		Fail(c, http.StatusBadRequest, "buyer must be High or Low")
		return
	}
	seller, ok := label(c.Query("seller"))
	if !ok {
		Fail(c, http.StatusBadRequest, "seller must be High or Low")
		return
	}
	calls := actionable.SegmentCalls(h.snapshot().Calls, buyer, seller)
	Success(c, gin.H{"buyer": buyer, "seller": seller, "count": len(calls), "calls": calls})
}

func (h *Handler) Actions(c *gin.Context) {
	s := h.snapshot()
	Success(c, actionable.Generate(s.Calls, s.Matrix))
}

func (h *Handler) ShipWith(c *gin.Context) {
	s := h.snapshot()
	leads := actionable.ShipWithLeads(s.Calls)
	Success(c, gin.H{"count": len(leads), "top_products": actionable.TopProducts(leads, 5), "calls": leads})
}

func (h *Handler) Runs(c *gin.Context) {
	if h.ledger == nil {
		Fail(c, http.StatusNotFound, "no run ledger configured")
		return
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil || limit <= 0 {
		Fail(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	runs, err := h.ledger.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.log.WithError(err).Error("list runs failed")
		Fail(c, http.StatusInternalServerError, "list runs failed")
		return
	}
	Success(c, runs)
}

func (h *Handler) RunCalls(c *gin.Context) {
	if h.ledger == nil {
		Fail(c, http.StatusNotFound, "no run ledger configured")
		return
	}
	calls, err := h.ledger.Calls(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.WithError(err).Error("list run calls failed")
		Fail(c, http.StatusInternalServerError, "list run calls failed")
		return
	}
	Success(c, calls)
}

func (h *Handler) PostRefresh(c *gin.Context) {
	if err := h.Refresh(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("refresh failed")
		Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	s := h.snapshot()
	Success(c, gin.H{"tables": s.TableNames(), "loaded_at": s.LoadedAt})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
