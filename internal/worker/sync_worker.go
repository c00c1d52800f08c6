package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dividi/internal/amqp"
	"dividi/internal/core"
	"dividi/internal/sheets"
	"dividi/internal/store"
)

// Refresher re-reads a store shared with other processes.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SyncWorker mirrors the monthly reports of the expense store into a
// spreadsheet, one tab per month with unsettled expenses.
type SyncWorker struct {
	store     store.Reader
	refresher Refresher
	sink      sheets.ReportSink
	opts      core.ReportOptions

	// syncs are serialized so two events for one month cannot interleave
	// their clear and write calls.
	mu sync.Mutex
}

// NewSyncWorker creates a worker. refresher may be nil.
func NewSyncWorker(st store.Reader, sink sheets.ReportSink, opts core.ReportOptions, refresher Refresher) *SyncWorker {
	return &SyncWorker{
		store:     st,
		refresher: refresher,
		sink:      sink,
		opts:      opts,
	}
}

// HandleChange processes one change message from AMQP.
func (w *SyncWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	slog.InfoContext(ctx, "Processing change message",
		"kind", msg.Kind,
		"expense_id", msg.ExpenseID,
		"year", msg.Year,
		"month", msg.Month,
		"origin", msg.Origin)

	if w.refresher != nil {
		if err := w.refresher.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh store: %w", err)
		}
	}

	switch msg.Kind {
	case amqp.ChangeCreated, amqp.ChangeSettled:
		if msg.Year == 0 || msg.Month < 1 || msg.Month > 12 {
			return w.SyncAll(ctx)
		}
		return w.SyncMonth(ctx, core.MonthKey{Year: msg.Year, Month: time.Month(msg.Month)})
	case amqp.ChangeCleared:
		return w.SyncAll(ctx)
	default:
		return fmt.Errorf("unknown change kind %q", msg.Kind)
	}
}

// SyncMonth rewrites the tab of one month, or empties it when the month no
// longer has unsettled expenses.
func (w *SyncWorker) SyncMonth(ctx context.Context, key core.MonthKey) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap, err := w.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	return w.syncMonth(ctx, snap, key)
}

// SyncAll rewrites every month that has unsettled expenses and empties every
// published month that no longer does. It keeps going after a failed month
// and returns all failures joined.
func (w *SyncWorker) SyncAll(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap, err := w.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	published, err := w.sink.PublishedMonths(ctx)
	if err != nil {
		return fmt.Errorf("list published months: %w", err)
	}

	seen := make(map[core.MonthKey]bool)
	var months []core.MonthKey
	for _, t := range core.AggregateByMonth(snap.Expenses, w.opts.Location).Sorted() {
		seen[t.Key] = true
		months = append(months, t.Key)
	}
	for _, key := range published {
		if !seen[key] {
			seen[key] = true
			months = append(months, key)
		}
	}

	var errs []error
	for _, key := range months {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.syncMonth(ctx, snap, key); err != nil {
			slog.ErrorContext(ctx, "Failed to sync month", "month", key.String(), "error", err)
			errs = append(errs, err)
		}
	}

	slog.InfoContext(ctx, "Full sync completed",
		"revision", snap.Revision,
		"months", len(months),
		"failed", len(errs))
	return errors.Join(errs...)
}

func (w *SyncWorker) syncMonth(ctx context.Context, snap store.Snapshot, key core.MonthKey) error {
	report, err := core.ExportMonth(snap.Expenses, key.Year, key.Month, w.opts)
	switch {
	case errors.Is(err, core.ErrNoData):
		if err := w.sink.ClearReport(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
		slog.DebugContext(ctx, "Month has nothing unsettled", "month", key.String())
		return nil
	case err != nil:
		return err
	}

	if err := w.sink.PublishReport(ctx, report); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	slog.InfoContext(ctx, "Successfully synced month",
		"month", key.String(),
		"rows", len(report.Rows),
		"revision", snap.Revision)
	return nil
}

// StartupSync brings the spreadsheet in line with the store before the
// worker starts consuming, covering messages lost while it was down.
func (w *SyncWorker) StartupSync(ctx context.Context) error {
	slog.InfoContext(ctx, "Running startup sync")
	if w.refresher != nil {
		if err := w.refresher.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh store: %w", err)
		}
	}
	return w.SyncAll(ctx)
}

// RunPeriodic performs a full sync every interval until ctx is done. Failed
// rounds are logged and retried on the next tick.
func (w *SyncWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.refresher != nil {
				if err := w.refresher.Refresh(ctx); err != nil {
					slog.WarnContext(ctx, "Periodic refresh failed", "error", err)
					continue
				}
			}
			if err := w.SyncAll(ctx); err != nil && ctx.Err() == nil {
				slog.WarnContext(ctx, "Periodic sync failed", "error", err)
			}
		}
	}
}
