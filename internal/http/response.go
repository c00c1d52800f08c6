package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dividi/internal/core"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps core errors to status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrNoData):
		writeError(w, http.StatusNotFound, noDataMessage)
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

const noDataMessage = "No unsettled expenses found for this month."

// amountField accepts the amount as a JSON string or number, so "12,50" can
// reach ParseAmount untouched.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("amount must be a string or number")
	}
	*a = amountField(n.String())
	return nil
}

type createExpenseRequest struct {
	Description string      `json:"description"`
	Amount      amountField `json:"amount"`
	PaidBy      string      `json:"paid_by"`
}

// exportQuery holds the parsed export parameters.
type exportQuery struct {
	Key    core.MonthKey
	Format string
}

// parseExportQuery reads year, month and format, defaulting to the current
// month and csv.
func parseExportQuery(r *http.Request, now time.Time, loc *time.Location) (exportQuery, error) {
	q := r.URL.Query()
	key := core.MonthKeyOf(now, loc)
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return exportQuery{}, &core.ValidationError{Field: "year", Err: errors.New("must be a positive number")}
		}
		key.Year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return exportQuery{}, &core.ValidationError{Field: "month", Err: errors.New("must be between 1 and 12")}
		}
		key.Month = time.Month(m)
	}

	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	switch format {
	case "":
		format = "csv"
	case "csv", "xlsx":
	default:
		return exportQuery{}, &core.ValidationError{Field: "format", Err: errors.New("must be csv or xlsx")}
	}
	return exportQuery{Key: key, Format: format}, nil
}
