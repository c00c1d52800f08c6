// Package memory keeps published reports in memory. The worker uses it when
// no spreadsheet is configured, and tests use it as a recording sink.
package memory

import (
	"context"
	"sync"

	"dividi/internal/core"
	ports "dividi/internal/sheets"
)

type Publisher struct {
	mu      sync.Mutex
	order   []core.MonthKey
	reports map[core.MonthKey]core.Report
	clears  int
}

var _ ports.ReportSink = (*Publisher)(nil)

func New() *Publisher {
	return &Publisher{reports: make(map[core.MonthKey]core.Report)}
}

// PublishReport stores a copy of r, replacing any earlier one for the month.
func (p *Publisher) PublishReport(_ context.Context, r core.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.reports[r.Key]; !ok {
		p.order = append(p.order, r.Key)
	}
	r.Rows = append([]core.ReportRow(nil), r.Rows...)
	p.reports[r.Key] = r
	return nil
}

// ClearReport empties the month but keeps it listed, like an emptied tab.
func (p *Publisher) ClearReport(_ context.Context, key core.MonthKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.reports[key]; !ok {
		return nil
	}
	p.reports[key] = core.Report{Key: key}
	p.clears++
	return nil
}

func (p *Publisher) PublishedMonths(_ context.Context) ([]core.MonthKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.MonthKey(nil), p.order...), nil
}

// Report returns what is currently published for key.
func (p *Publisher) Report(key core.MonthKey) (core.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.reports[key]
	return r, ok
}

// Clears counts ClearReport calls that hit an existing month.
func (p *Publisher) Clears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}
