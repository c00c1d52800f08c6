package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDateLayout matches the en-US short date ("3/14/2024").
const DefaultDateLayout = "1/2/2006"

// ReportOptions controls how dates are bucketed and displayed in a report.
type ReportOptions struct {
	Location   *time.Location // nil means local time
	DateLayout string         // empty means DefaultDateLayout
}

func (o ReportOptions) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o ReportOptions) layout() string {
	if o.DateLayout == "" {
		return DefaultDateLayout
	}
	return o.DateLayout
}

// FormatDate renders t the way report rows display it.
func (o ReportOptions) FormatDate(t time.Time) string {
	return t.In(o.location()).Format(o.layout())
}

// ReportRow is one exported expense.
type ReportRow struct {
	Date        string
	Amount      decimal.Decimal
	Description string
	PaidBy      string
}

// Report is the list of unsettled expenses of one month, in store order.
type Report struct {
	Key  MonthKey
	Rows []ReportRow
}

// Total sums the report amounts.
func (r Report) Total() decimal.Decimal {
	total := decimal.Zero
	for _, row := range r.Rows {
		total = total.Add(row.Amount)
	}
	return total
}

// Filename returns "Expenses_<year>-<month>.<ext>" with an unpadded month.
func (r Report) Filename(ext string) string {
	return ReportFilename(r.Key, ext)
}

// ReportFilename builds the export file name for a month.
func ReportFilename(key MonthKey, ext string) string {
	if ext == "" {
		return "Expenses_" + key.String()
	}
	return fmt.Sprintf("Expenses_%s.%s", key, ext)
}

// ParseReportTitle recovers the month from a name built by ReportFilename
// without an extension.
func ParseReportTitle(title string) (MonthKey, bool) {
	rest, ok := strings.CutPrefix(title, "Expenses_")
	if !ok {
		return MonthKey{}, false
	}
	key, err := ParseMonthKey(rest)
	if err != nil {
		return MonthKey{}, false
	}
	return key, true
}

// ExportMonth selects the unsettled expenses dated in the given month.
// It returns a NoDataError when there are none, so callers can tell
// "nothing to export" apart from a report to write.
func ExportMonth(expenses []Expense, year int, month time.Month, opts ReportOptions) (Report, error) {
	key := MonthKey{Year: year, Month: month}
	report := Report{Key: key}
	loc := opts.location()
	for _, e := range expenses {
		if e.Settled || MonthKeyOf(e.Date, loc) != key {
			continue
		}
		report.Rows = append(report.Rows, ReportRow{
			Date:        opts.FormatDate(e.Date),
			Amount:      e.Amount,
			Description: e.Description,
			PaidBy:      e.PaidBy,
		})
	}
	if len(report.Rows) == 0 {
		return Report{Key: key}, &NoDataError{Key: key}
	}
	return report, nil
}
