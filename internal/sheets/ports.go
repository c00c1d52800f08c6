// Package sheets mirrors monthly reports into a spreadsheet.
package sheets

import (
	"context"

	"dividi/internal/core"
)

// Ports for outbound adapters.
type (
	ReportPublisher interface {
		// PublishReport replaces the tab of r.Key with the report rows.
		PublishReport(ctx context.Context, r core.Report) error
		// ClearReport empties the tab of key. A missing tab is not an error.
		ClearReport(ctx context.Context, key core.MonthKey) error
	}

	// ReportLister lists the months that currently have a tab.
	ReportLister interface {
		PublishedMonths(ctx context.Context) ([]core.MonthKey, error)
	}

	// ReportSink is what the sync worker writes to.
	ReportSink interface {
		ReportPublisher
		ReportLister
	}
)

// Header is the first row of every published tab.
var Header = []string{"Date", "Amount", "Description", "Paid By"}
