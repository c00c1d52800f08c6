package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"dividi/internal/core"
	ports "dividi/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client writes one tab per month, named like the export file without its
// extension ("Expenses_2024-5").
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu   sync.Mutex
	tabs map[string]int64 // title -> sheet id, nil until first lookup
}

var _ ports.ReportSink = (*Client)(nil)

// New wraps an existing service.
func New(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID}
}

// NewFromEnv creates a Sheets client authenticated with a service account.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func NewFromEnv(ctx context.Context, spreadsheetID string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID), nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// PublishReport replaces the month's tab with a header and one row per
// expense. The tab is created when missing.
func (c *Client) PublishReport(ctx context.Context, r core.Report) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := core.ReportFilename(r.Key, "")
	if err := c.ensureTab(ctx, title); err != nil {
		return err
	}

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tabRange(title), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", title, err)
	}

	values := make([][]interface{}, 0, len(r.Rows)+1)
	header := make([]interface{}, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	values = append(values, header)
	for _, row := range r.Rows {
		values = append(values, []interface{}{row.Date, row.Amount.InexactFloat64(), row.Description, row.PaidBy})
	}

	vr := &gsheet.ValueRange{Values: values}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("'%s'!A1", title), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Published report",
		"tab", title,
		"rows", len(r.Rows),
		"updated_cells", resp.UpdatedCells)
	return nil
}

// ClearReport empties the month's tab, leaving the tab itself in place.
func (c *Client) ClearReport(ctx context.Context, key core.MonthKey) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := core.ReportFilename(key, "")
	exists, err := c.hasTab(ctx, title)
	if err != nil || !exists {
		return err
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tabRange(title), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Cleared report", "tab", title)
	return nil
}

// PublishedMonths lists the months that have a tab, in sheet order.
func (c *Client) PublishedMonths(ctx context.Context) ([]core.MonthKey, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	c.tabs = nil
	c.mu.Unlock()

	titles, err := c.fetchTitles(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.MonthKey
	for _, title := range titles {
		if key, ok := core.ParseReportTitle(title); ok {
			out = append(out, key)
		}
	}
	return out, nil
}

func (c *Client) ensureTab(ctx context.Context, title string) error {
	exists, err := c.hasTab(ctx, title)
	if err != nil || exists {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}

	var id int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id = resp.Replies[0].AddSheet.Properties.SheetId
	}
	c.mu.Lock()
	if c.tabs != nil {
		c.tabs[title] = id
	}
	c.mu.Unlock()
	slog.InfoContext(ctx, "Created report tab", "tab", title, "sheet_id", id)
	return nil
}

func (c *Client) hasTab(ctx context.Context, title string) (bool, error) {
	c.mu.Lock()
	if c.tabs != nil {
		_, ok := c.tabs[title]
		c.mu.Unlock()
		return ok, nil
	}
	c.mu.Unlock()

	titles, err := c.fetchTitles(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range titles {
		if t == title {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) fetchTitles(ctx context.Context) ([]string, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	tabs := make(map[string]int64, len(ss.Sheets))
	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		tabs[sh.Properties.Title] = sh.Properties.SheetId
		titles = append(titles, sh.Properties.Title)
	}
	c.mu.Lock()
	c.tabs = tabs
	c.mu.Unlock()
	return titles, nil
}

func tabRange(title string) string {
	return fmt.Sprintf("'%s'!A:D", title)
}
