package http

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/cache"
	"dividi/internal/core"
	"dividi/internal/log"
	"dividi/internal/report"
	"dividi/internal/tracker"
)

const maxBodyBytes = 1 << 20

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports 503 until the tracker has seen its first snapshot.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.deps.Tracker.Ready() {
		writeError(w, http.StatusServiceUnavailable, "store not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleParticipants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"participants": s.deps.Participants.Names()})
}

type expensesResponse struct {
	Revision        uint64                `json:"revision"`
	Expenses        []tracker.ExpenseLine `json:"expenses"`
	Outstanding     decimal.Decimal       `json:"outstanding"`
	OutstandingText string                `json:"outstanding_text"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, _ *http.Request) {
	v := s.deps.Tracker.View()
	writeJSON(w, http.StatusOK, expensesResponse{
		Revision:        v.Revision,
		Expenses:        tracker.ExpenseLines(v, s.deps.Formatter),
		Outstanding:     v.Outstanding(),
		OutstandingText: s.deps.Formatter.Money(v.Outstanding()),
		UpdatedAt:       v.UpdatedAt,
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
	}

	var req createExpenseRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		writeDomainError(w, &core.ValidationError{Field: "amount", Err: err})
		return
	}

	id, err := s.deps.Expenses.CreateExpense(ctx, core.ExpenseInput{
		Description: req.Description,
		Amount:      amount,
		PaidBy:      req.PaidBy,
	})
	if err != nil {
		if !core.IsValidation(err) {
			logger.ErrorContext(ctx, "Failed to create expense", log.FieldError, err)
		}
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/expenses/"+id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.deps.Settlement.MarkSettled(ctx, id); err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			log.FromContext(ctx).ErrorContext(ctx, "Failed to settle expense", log.FieldExpenseID, id, log.FieldError, err)
		}
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearAll removes every expense. The caller confirms with confirm=true.
func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if !confirmed {
		writeError(w, http.StatusBadRequest, "confirmation required: pass confirm=true")
		return
	}
	if err := s.deps.Settlement.ClearAll(ctx); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to clear expenses", log.FieldError, err)
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type balancesResponse struct {
	Revision uint64                `json:"revision"`
	User     string                `json:"user,omitempty"`
	Lines    []tracker.BalanceLine `json:"lines"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	session, err := tracker.NewSession(s.deps.Participants, r.URL.Query().Get("as"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	v := s.deps.Tracker.View()
	writeJSON(w, http.StatusOK, balancesResponse{
		Revision: v.Revision,
		User:     session.User,
		Lines:    tracker.BalanceLines(v, session, s.deps.Formatter),
	})
}

type monthlyResponse struct {
	Revision uint64              `json:"revision"`
	Months   []tracker.MonthLine `json:"months"`
}

func (s *Server) handleMonthly(w http.ResponseWriter, _ *http.Request) {
	v := s.deps.Tracker.View()
	writeJSON(w, http.StatusOK, monthlyResponse{
		Revision: v.Revision,
		Months:   tracker.MonthLines(v, s.deps.Formatter),
	})
}

// handleExport serves the month's report as an attachment. Rendered
// artifacts are cached per store revision.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseExportQuery(r, s.deps.Now(), s.deps.Report.Location)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	v := s.deps.Tracker.View()
	render := func() (cache.Artifact, error) {
		rep, err := core.ExportMonth(v.Expenses, q.Key.Year, q.Key.Month, s.deps.Report)
		if err != nil {
			return cache.Artifact{}, err
		}
		body, contentType, err := report.Render(rep, q.Format)
		if err != nil {
			return cache.Artifact{}, err
		}
		return cache.Artifact{Filename: rep.Filename(q.Format), ContentType: contentType, Body: body}, nil
	}

	var (
		artifact cache.Artifact
		hit      bool
	)
	if s.deps.Exports != nil {
		artifact, hit, err = s.deps.Exports.GetOrRender(cache.Key{Revision: v.Revision, Month: q.Key, Format: q.Format}, render)
	} else {
		artifact, err = render()
	}

	switch {
	case errors.Is(err, core.ErrNoData):
		s.deps.Metrics.Exported(q.Format, "nodata")
		writeDomainError(w, err)
		return
	case err != nil:
		s.deps.Metrics.Exported(q.Format, "error")
		log.FromContext(ctx).ErrorContext(ctx, "Failed to render export", log.FieldMonth, q.Key.String(), "format", q.Format, log.FieldError, err)
		writeDomainError(w, err)
		return
	}

	outcome := "rendered"
	if hit {
		outcome = "cached"
	}
	s.deps.Metrics.Exported(q.Format, outcome)

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Body)
}
