package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportMonth(t *testing.T) {
	opts := ReportOptions{Location: time.UTC}
	expenses := []Expense{
		{Description: `He said "hi"`, Amount: dec("12.5"), PaidBy: "A", Date: at(2024, 3, 14)},
		{Description: "settled", Amount: dec("99"), PaidBy: "B", Date: at(2024, 3, 15), Settled: true},
		{Description: "other month", Amount: dec("7"), PaidBy: "B", Date: at(2024, 4, 1)},
		{Description: "rent", Amount: dec("300"), PaidBy: "C", Date: at(2024, 3, 1)},
	}

	report, err := ExportMonth(expenses, 2024, time.March, opts)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	assert.Equal(t, "3/14/2024", report.Rows[0].Date)
	assert.Equal(t, `He said "hi"`, report.Rows[0].Description)
	assert.Equal(t, "12.5", report.Rows[0].Amount.String())
	assert.Equal(t, "A", report.Rows[0].PaidBy)
	assert.Equal(t, "rent", report.Rows[1].Description)
	assert.True(t, report.Total().Equal(dec("312.5")))
	assert.Equal(t, "Expenses_2024-3.csv", report.Filename("csv"))
}

func TestExportMonth_NoData(t *testing.T) {
	expenses := []Expense{
		{Description: "settled", Amount: dec("1"), PaidBy: "A", Date: at(2024, 3, 2), Settled: true},
	}
	report, err := ExportMonth(expenses, 2024, time.March, ReportOptions{Location: time.UTC})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Empty(t, report.Rows)

	var nd *NoDataError
	require.True(t, errors.As(err, &nd))
	assert.Equal(t, MonthKey{Year: 2024, Month: time.March}, nd.Key)
}

func TestExportMonth_DateLayout(t *testing.T) {
	expenses := []Expense{{Description: "a", Amount: dec("1"), PaidBy: "A", Date: at(2024, 3, 9)}}
	report, err := ExportMonth(expenses, 2024, time.March, ReportOptions{Location: time.UTC, DateLayout: "02/01/2006"})
	require.NoError(t, err)
	assert.Equal(t, "09/03/2024", report.Rows[0].Date)
}

func TestReportFilename(t *testing.T) {
	key := MonthKey{Year: 2024, Month: time.November}
	assert.Equal(t, "Expenses_2024-11.xlsx", ReportFilename(key, "xlsx"))
	assert.Equal(t, "Expenses_2024-11", ReportFilename(key, ""))
}

func TestParseReportTitle(t *testing.T) {
	key, ok := ParseReportTitle("Expenses_2024-11")
	require.True(t, ok)
	assert.Equal(t, MonthKey{Year: 2024, Month: time.November}, key)

	for _, title := range []string{"Sheet1", "Expenses_", "Expenses_2024-13", "Expenses_x-1"} {
		_, ok := ParseReportTitle(title)
		assert.False(t, ok, title)
	}
}
