package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dividi/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets implements the handful of Sheets endpoints the client uses.
type fakeSheets struct {
	mu      sync.Mutex
	titles  []string
	cleared []string
	written map[string][][]interface{}
	gets    int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/v4/spreadsheets/sheet-1":
		f.gets++
		var sheets []map[string]interface{}
		for i, title := range f.titles {
			sheets = append(sheets, map[string]interface{}{
				"properties": map[string]interface{}{"sheetId": i + 1, "title": title},
			})
		}
		writeJSON(w, map[string]interface{}{"sheets": sheets})

	case r.Method == http.MethodPost && path == "/v4/spreadsheets/sheet-1:batchUpdate":
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		title := req.Requests[0].AddSheet.Properties.Title
		f.titles = append(f.titles, title)
		writeJSON(w, map[string]interface{}{
			"spreadsheetId": "sheet-1",
			"replies": []map[string]interface{}{{
				"addSheet": map[string]interface{}{
					"properties": map[string]interface{}{"sheetId": len(f.titles), "title": title},
				},
			}},
		})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		rng := strings.TrimSuffix(strings.TrimPrefix(path, "/v4/spreadsheets/sheet-1/values/"), ":clear")
		f.cleared = append(f.cleared, rng)
		writeJSON(w, map[string]interface{}{"clearedRange": rng})

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/v4/spreadsheets/sheet-1/values/"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		rng := strings.TrimPrefix(path, "/v4/spreadsheets/sheet-1/values/")
		f.written[rng] = vr.Values
		writeJSON(w, map[string]interface{}{"updatedCells": len(vr.Values) * 4})

	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, titles ...string) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{titles: titles, written: map[string][][]interface{}{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return New(svc, "sheet-1"), fake
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromEnv(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background(), "sheet-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")

	_, err := NewFromEnv(context.Background(), "sheet-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "sheet-1"}
	key := core.MonthKey{Year: 2024, Month: time.March}

	assert.Error(t, c.PublishReport(context.Background(), core.Report{Key: key}))
	assert.Error(t, c.ClearReport(context.Background(), key))
	_, err := c.PublishedMonths(context.Background())
	assert.Error(t, err)
}

func TestPublishReport_CreatesTabAndWritesRows(t *testing.T) {
	c, fake := newTestClient(t, "Sheet1")
	report := core.Report{
		Key: core.MonthKey{Year: 2024, Month: time.March},
		Rows: []core.ReportRow{
			{Date: "3/1/2024", Amount: decimal.RequireFromString("300"), Description: "rent", PaidBy: "Zayd"},
			{Date: "3/14/2024", Amount: decimal.RequireFromString("12.5"), Description: "chai", PaidBy: "Simra"},
		},
	}

	require.NoError(t, c.PublishReport(context.Background(), report))

	assert.Equal(t, []string{"Sheet1", "Expenses_2024-3"}, fake.titles)
	assert.Equal(t, []string{"'Expenses_2024-3'!A:D"}, fake.cleared)

	rows := fake.written["'Expenses_2024-3'!A1"]
	require.Len(t, rows, 3)
	assert.Equal(t, []interface{}{"Date", "Amount", "Description", "Paid By"}, rows[0])
	assert.Equal(t, []interface{}{"3/1/2024", float64(300), "rent", "Zayd"}, rows[1])
	assert.Equal(t, []interface{}{"3/14/2024", 12.5, "chai", "Simra"}, rows[2])

	// The tab list is cached after the first lookup.
	require.NoError(t, c.PublishReport(context.Background(), report))
	assert.Equal(t, 1, fake.gets)
	assert.Len(t, fake.titles, 2)
}

func TestClearReport(t *testing.T) {
	c, fake := newTestClient(t, "Expenses_2024-3")

	require.NoError(t, c.ClearReport(context.Background(), core.MonthKey{Year: 2024, Month: time.April}))
	assert.Empty(t, fake.cleared, "missing tab is left alone")

	require.NoError(t, c.ClearReport(context.Background(), core.MonthKey{Year: 2024, Month: time.March}))
	assert.Equal(t, []string{"'Expenses_2024-3'!A:D"}, fake.cleared)
}

func TestPublishedMonths(t *testing.T) {
	c, _ := newTestClient(t, "Sheet1", "Expenses_2024-3", "Notes", "Expenses_2023-12")

	months, err := c.PublishedMonths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.MonthKey{
		{Year: 2024, Month: time.March},
		{Year: 2023, Month: time.December},
	}, months)
}
