// Package tracker keeps a live view of balances and monthly totals by
// recomputing them from every snapshot the expense store emits.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/core"
	"dividi/internal/store"
)

// View is an immutable result of one recomputation.
type View struct {
	Revision  uint64
	Expenses  []core.Expense
	Balances  core.Balances
	Monthly   core.MonthlyTotals
	UpdatedAt time.Time
}

// Outstanding returns the sum of unsettled expenses in the view.
func (v View) Outstanding() decimal.Decimal { return core.Sum(core.Unsettled(v.Expenses)) }

type Option func(*Tracker)

// WithLocation sets the zone used for month grouping.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// WithOnChange registers fn to run after each accepted snapshot.
func WithOnChange(fn func(View)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

type Tracker struct {
	participants core.Participants
	loc          *time.Location
	onChange     func(View)

	mu      sync.RWMutex
	view    View
	started bool
	sub     *store.Subscription
}

func New(participants core.Participants, opts ...Option) *Tracker {
	t := &Tracker{participants: participants, loc: time.Local}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start subscribes to s. The store delivers its current snapshot before
// Start returns, so View is populated afterwards.
func (t *Tracker) Start(ctx context.Context, s store.Subscriber) error {
	t.mu.Lock()
	if t.sub != nil {
		t.mu.Unlock()
		return fmt.Errorf("tracker already started")
	}
	t.mu.Unlock()

	sub, err := s.Subscribe(ctx, t.apply)
	if err != nil {
		return fmt.Errorf("subscribe to store: %w", err)
	}

	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	return nil
}

// Stop ends the subscription. It is safe to call on a tracker that never
// started.
func (t *Tracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	sub.Unsubscribe()
}

// View returns the latest computed view.
func (t *Tracker) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}

// Ready reports whether at least one snapshot has been applied.
func (t *Tracker) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}

func (t *Tracker) apply(snap store.Snapshot) {
	next := Compute(snap, t.participants, t.loc)

	t.mu.Lock()
	if t.started && snap.Revision <= t.view.Revision {
		t.mu.Unlock()
		slog.Debug("Dropping stale snapshot", "revision", snap.Revision, "current", t.view.Revision)
		return
	}
	t.view = next
	t.started = true
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}

// Compute derives a view from one snapshot.
func Compute(snap store.Snapshot, participants core.Participants, loc *time.Location) View {
	return View{
		Revision:  snap.Revision,
		Expenses:  snap.Expenses,
		Balances:  core.ComputeBalances(snap.Expenses, participants),
		Monthly:   core.AggregateByMonth(snap.Expenses, loc),
		UpdatedAt: time.Now(),
	}
}
