package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"dividi/internal/cache"
	"dividi/internal/core"
	"dividi/internal/log"
	"dividi/internal/services"
	"dividi/internal/store/memory"
	"dividi/internal/tracker"
)

var testNow = time.Date(2024, 3, 14, 18, 30, 0, 0, time.UTC)

type harness struct {
	srv     *Server
	store   *memory.Store
	metrics *services.Metrics
}

func newHarness(t *testing.T, rateLimit int) *harness {
	t.Helper()
	participants := core.MustParticipants("Zayd", "Ishraque", "Simra")
	st := memory.New()
	reg := prometheus.NewRegistry()
	m := services.NewMetrics(reg)
	clock := func() time.Time { return testNow }

	tr := tracker.New(participants, tracker.WithLocation(time.UTC))
	require.NoError(t, tr.Start(context.Background(), st))
	t.Cleanup(tr.Stop)

	opts := []services.Option{services.WithClock(clock), services.WithLocation(time.UTC), services.WithMetrics(m)}
	srv := NewServer(":0", Deps{
		Tracker:      tr,
		Expenses:     services.NewExpenseService(st, participants, opts...),
		Settlement:   services.NewSettlementController(st, opts...),
		Participants: participants,
		Formatter:    tracker.NewFormatter("₹", language.English, time.UTC),
		Report:       core.ReportOptions{Location: time.UTC},
		Exports:      cache.NewExportCache(8, time.Minute),
		Metrics:      m,
		Gatherer:     reg,
		Logger:       log.New(log.Config{Level: slog.LevelError, Format: "text", Output: io.Discard}),
		RateLimit:    rateLimit,
		Now:          clock,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &harness{srv: srv, store: st, metrics: m}
}

func (h *harness) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (h *harness) create(t *testing.T, desc, amount, paidBy string) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"description": desc, "amount": amount, "paid_by": paidBy})
	rr := h.do(t, http.MethodPost, "/api/expenses", string(payload))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out["id"]
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t, 0)

	rr := h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = h.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReadyBeforeFirstSnapshot(t *testing.T) {
	srv := NewServer(":0", Deps{
		Tracker: tracker.New(core.MustParticipants("A")),
		Logger:  log.New(log.Config{Level: slog.LevelError, Format: "text", Output: io.Discard}),
	})
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestParticipants(t *testing.T) {
	h := newHarness(t, 0)
	rr := h.do(t, http.MethodGet, "/api/participants", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string][]string](t, rr)
	assert.Equal(t, []string{"Zayd", "Ishraque", "Simra"}, body["participants"])
}

func TestCreateAndListExpenses(t *testing.T) {
	h := newHarness(t, 0)
	id := h.create(t, "Dinner", "90", "Zayd")
	assert.NotEmpty(t, id)

	rr := h.do(t, http.MethodPost, "/api/expenses", `{"description":"chai","amount":12.5,"paid_by":"Simra"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = h.do(t, http.MethodGet, "/api/expenses", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Revision        uint64 `json:"revision"`
		OutstandingText string `json:"outstanding_text"`
		Expenses        []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"expenses"`
	}](t, rr)

	require.Len(t, body.Expenses, 2)
	assert.Equal(t, id, body.Expenses[0].ID)
	assert.Equal(t, "Dinner - ₹90.00 paid by Zayd", body.Expenses[0].Text)
	assert.Equal(t, "₹102.50", body.OutstandingText)
	assert.Equal(t, uint64(2), body.Revision)
}

func TestCreateExpense_Rejects(t *testing.T) {
	h := newHarness(t, 0)
	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"bad amount", `{"description":"x","amount":"abc","paid_by":"Zayd"}`, http.StatusBadRequest, "amount"},
		{"negative amount", `{"description":"x","amount":"-1","paid_by":"Zayd"}`, http.StatusBadRequest, "amount"},
		{"unknown payer", `{"description":"x","amount":"1","paid_by":"Nobody"}`, http.StatusBadRequest, "paid_by"},
		{"empty description", `{"description":"  ","amount":"1","paid_by":"Zayd"}`, http.StatusBadRequest, "description"},
		{"malformed json", `{"description":`, http.StatusBadRequest, ""},
		{"unknown field", `{"description":"x","amount":"1","paid_by":"Zayd","extra":1}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(t, http.MethodPost, "/api/expenses", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			body := decode[errorBody](t, rr)
			assert.Equal(t, tt.field, body.Field)
			assert.NotEmpty(t, body.Error)
		})
	}

	snap, _ := h.store.Snapshot(context.Background())
	assert.Empty(t, snap.Expenses)
}

func TestCreateExpense_WrongContentType(t *testing.T) {
	h := newHarness(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader("description=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestSettle(t *testing.T) {
	h := newHarness(t, 0)
	id := h.create(t, "Dinner", "90", "Zayd")

	rr := h.do(t, http.MethodPost, "/api/expenses/"+id+"/settle", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	snap, _ := h.store.Snapshot(context.Background())
	assert.True(t, snap.Expenses[0].Settled)

	rr = h.do(t, http.MethodPost, "/api/expenses/"+id+"/settle", "")
	assert.Equal(t, http.StatusNoContent, rr.Code, "settling twice is allowed")

	rr = h.do(t, http.MethodPost, "/api/expenses/nope/settle", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestClearAll(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "Dinner", "90", "Zayd")

	rr := h.do(t, http.MethodDelete, "/api/expenses", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	h.store.FailNext(errors.New("disk full"))
	rr = h.do(t, http.MethodDelete, "/api/expenses?confirm=true", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	snap, _ := h.store.Snapshot(context.Background())
	assert.Len(t, snap.Expenses, 1, "failed clear leaves the store intact")

	rr = h.do(t, http.MethodDelete, "/api/expenses?confirm=true", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	snap, _ = h.store.Snapshot(context.Background())
	assert.Empty(t, snap.Expenses)
}

func TestBalances(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "Dinner", "90", "Zayd")

	rr := h.do(t, http.MethodGet, "/api/balances?as=Ishraque", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		User  string `json:"user"`
		Lines []struct {
			Participant string `json:"participant"`
			Status      string `json:"status"`
			Text        string `json:"text"`
			Current     bool   `json:"current"`
		} `json:"lines"`
	}](t, rr)

	assert.Equal(t, "Ishraque", body.User)
	require.Len(t, body.Lines, 3)
	assert.Equal(t, "You are owed ₹60.00", body.Lines[0].Text)
	assert.Equal(t, "owed", body.Lines[0].Status)
	assert.Equal(t, "You owe ₹30.00", body.Lines[1].Text)
	assert.True(t, body.Lines[1].Current)
	assert.False(t, body.Lines[0].Current)

	rr = h.do(t, http.MethodGet, "/api/balances?as=Mallory", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMonthlySummary(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "Dinner", "90", "Zayd")
	h.create(t, "Chai", "10", "Simra")

	rr := h.do(t, http.MethodGet, "/api/summary/monthly", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Months []struct {
			Key  string `json:"key"`
			Text string `json:"text"`
		} `json:"months"`
	}](t, rr)
	require.Len(t, body.Months, 1)
	assert.Equal(t, "2024-3", body.Months[0].Key)
	assert.Equal(t, "March 2024: ₹100.00", body.Months[0].Text)
}

func TestExport(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, `He said "hi"`, "12.5", "Zayd")

	rr := h.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=Expenses_2024-3.csv`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "Date,Amount,Description,Paid By\n3/14/2024,12.5,\"He said \"\"hi\"\"\",Zayd\n", rr.Body.String())

	again := h.do(t, http.MethodGet, "/api/export?year=2024&month=3&format=csv", "")
	require.Equal(t, http.StatusOK, again.Code)
	assert.True(t, bytes.Equal(rr.Body.Bytes(), again.Body.Bytes()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Exports.WithLabelValues("csv", "rendered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Exports.WithLabelValues("csv", "cached")))

	rr = h.do(t, http.MethodGet, "/api/export?format=xlsx", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "Expenses_2024-3.xlsx")
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestExport_NoData(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "Dinner", "90", "Zayd")

	rr := h.do(t, http.MethodGet, "/api/export?year=2024&month=4", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No unsettled expenses found for this month.", decode[errorBody](t, rr).Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Exports.WithLabelValues("csv", "nodata")))
}

func TestExport_BadQuery(t *testing.T) {
	h := newHarness(t, 0)
	for _, q := range []string{"month=13", "month=x", "year=-1", "format=pdf"} {
		rr := h.do(t, http.MethodGet, "/api/export?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestExport_NewRevisionRendersAgain(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "Dinner", "90", "Zayd")
	first := h.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, first.Code)

	h.create(t, "Chai", "10", "Simra")
	second := h.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "Chai")
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Exports.WithLabelValues("csv", "rendered")))
}

func TestWriteRateLimit(t *testing.T) {
	h := newHarness(t, 1)
	h.create(t, "Dinner", "90", "Zayd")

	rr := h.do(t, http.MethodPost, "/api/expenses", `{"description":"x","amount":"1","paid_by":"Zayd"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr = h.do(t, http.MethodGet, "/api/expenses", "")
	assert.Equal(t, http.StatusOK, rr.Code, "reads are not limited")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, 0)
	h.create(t, "Dinner", "90", "Zayd")

	rr := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dividi_expenses_created_total 1")
}

func TestUnknownMethod(t *testing.T) {
	h := newHarness(t, 0)
	rr := h.do(t, http.MethodPut, "/api/expenses", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
