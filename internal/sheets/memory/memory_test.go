package memory

import (
	"context"
	"testing"
	"time"

	"dividi/internal/core"

	"github.com/shopspring/decimal"
)

func TestPublisherPublishAndClear(t *testing.T) {
	ctx := context.Background()
	p := New()
	march := core.MonthKey{Year: 2024, Month: time.March}
	rows := []core.ReportRow{{Date: "3/1/2024", Amount: decimal.NewFromInt(5), Description: "x", PaidBy: "A"}}

	if err := p.PublishReport(ctx, core.Report{Key: march, Rows: rows}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	rows[0].Description = "mutated"

	got, ok := p.Report(march)
	if !ok || len(got.Rows) != 1 || got.Rows[0].Description != "x" {
		t.Fatalf("unexpected report: %+v ok=%v", got, ok)
	}

	if err := p.ClearReport(ctx, core.MonthKey{Year: 2024, Month: time.April}); err != nil {
		t.Fatalf("clear missing: %v", err)
	}
	if p.Clears() != 0 {
		t.Fatalf("clearing an unknown month should be a no-op")
	}

	if err := p.ClearReport(ctx, march); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = p.Report(march)
	if len(got.Rows) != 0 || p.Clears() != 1 {
		t.Fatalf("expected empty report after clear, got %+v", got)
	}

	months, _ := p.PublishedMonths(ctx)
	if len(months) != 1 || months[0] != march {
		t.Fatalf("unexpected months: %v", months)
	}
}
