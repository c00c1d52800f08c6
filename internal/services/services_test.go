package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dividi/internal/amqp"
	"dividi/internal/core"
	"dividi/internal/store/memory"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ChangeMessage
	err  error
}

func (f *fakePublisher) PublishChange(_ context.Context, msg *amqp.ChangeMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

var (
	participants = core.MustParticipants("Zayd", "Ishraque", "Simra")
	fixedNow     = time.Date(2024, 5, 17, 20, 15, 0, 0, time.UTC)
)

func clock() time.Time { return fixedNow }

func TestCreateExpense(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	m := NewMetrics(prometheus.NewRegistry())
	svc := NewExpenseService(st, participants,
		WithClock(clock), WithLocation(time.UTC), WithPublisher(pub), WithOrigin("me"), WithMetrics(m))

	id, err := svc.CreateExpense(context.Background(), core.ExpenseInput{
		Description: "  dinner ",
		Amount:      decimal.RequireFromString("90"),
		PaidBy:      "Zayd",
	})
	require.NoError(t, err)

	snap, _ := st.Snapshot(context.Background())
	require.Len(t, snap.Expenses, 1)
	e := snap.Expenses[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "dinner", e.Description)
	assert.True(t, e.Date.Equal(fixedNow))
	assert.False(t, e.Settled)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, amqp.ChangeCreated, pub.msgs[0].Kind)
	assert.Equal(t, id, pub.msgs[0].ExpenseID)
	assert.Equal(t, 2024, pub.msgs[0].Year)
	assert.Equal(t, 5, pub.msgs[0].Month)
	assert.Equal(t, "me", pub.msgs[0].Origin)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Created))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Published.WithLabelValues("created")))
}

func TestCreateExpense_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    core.ExpenseInput
		field string
		want  error
	}{
		{"empty description", core.ExpenseInput{Description: "  ", Amount: decimal.NewFromInt(1), PaidBy: "Zayd"}, "description", core.ErrEmptyDescription},
		{"zero amount", core.ExpenseInput{Description: "x", Amount: decimal.Zero, PaidBy: "Zayd"}, "amount", core.ErrInvalidAmount},
		{"negative amount", core.ExpenseInput{Description: "x", Amount: decimal.NewFromInt(-3), PaidBy: "Zayd"}, "amount", core.ErrInvalidAmount},
		{"unknown payer", core.ExpenseInput{Description: "x", Amount: decimal.NewFromInt(1), PaidBy: "Mallory"}, "paid_by", core.ErrUnknownParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			pub := &fakePublisher{}
			svc := NewExpenseService(st, participants, WithClock(clock), WithPublisher(pub))

			_, err := svc.CreateExpense(context.Background(), tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)

			snap, _ := st.Snapshot(context.Background())
			assert.Empty(t, snap.Expenses, "nothing stored on validation failure")
			assert.Empty(t, pub.msgs)
		})
	}
}

func TestCreateExpense_PublishFailureDoesNotFailWrite(t *testing.T) {
	st := memory.New()
	svc := NewExpenseService(st, participants, WithClock(clock), WithPublisher(&fakePublisher{err: errors.New("broker down")}))

	_, err := svc.CreateExpense(context.Background(), core.ExpenseInput{
		Description: "x", Amount: decimal.NewFromInt(1), PaidBy: "Simra",
	})
	require.NoError(t, err)
}

func TestCreateExpense_StoreError(t *testing.T) {
	st := memory.New()
	st.FailNext(errors.New("disk full"))
	svc := NewExpenseService(st, participants, WithClock(clock))

	_, err := svc.CreateExpense(context.Background(), core.ExpenseInput{
		Description: "x", Amount: decimal.NewFromInt(1), PaidBy: "Simra",
	})
	var se *core.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "create", se.Op)
}

func seeded(t *testing.T) (*memory.Store, string) {
	t.Helper()
	st := memory.New()
	id, err := st.Create(context.Background(), core.ExpenseInput{
		Description: "rent", Amount: decimal.NewFromInt(90), PaidBy: "Zayd", Date: fixedNow,
	})
	require.NoError(t, err)
	return st, id
}

func TestSettlementController_MarkSettled(t *testing.T) {
	st, id := seeded(t)
	pub := &fakePublisher{}
	c := NewSettlementController(st, WithPublisher(pub), WithLocation(time.UTC))

	require.NoError(t, c.MarkSettled(context.Background(), id))
	snap, _ := st.Snapshot(context.Background())
	assert.True(t, snap.Expenses[0].Settled)

	// Already settled: still a write, still succeeds, never reverts.
	require.NoError(t, c.MarkSettled(context.Background(), id))
	snap, _ = st.Snapshot(context.Background())
	assert.True(t, snap.Expenses[0].Settled)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, amqp.ChangeSettled, pub.msgs[0].Kind)
	assert.Equal(t, 5, pub.msgs[0].Month)
}

func TestSettlementController_MarkSettledUnknown(t *testing.T) {
	st, _ := seeded(t)
	pub := &fakePublisher{}
	c := NewSettlementController(st, WithPublisher(pub))

	err := c.MarkSettled(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, pub.msgs)
}

func TestSettlementController_ClearAll(t *testing.T) {
	st, _ := seeded(t)
	pub := &fakePublisher{}
	m := NewMetrics(nil)
	c := NewSettlementController(st, WithPublisher(pub), WithMetrics(m))

	require.NoError(t, c.ClearAll(context.Background()))
	snap, _ := st.Snapshot(context.Background())
	assert.Empty(t, snap.Expenses)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, amqp.ChangeCleared, pub.msgs[0].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cleared))
}

func TestSettlementController_ClearAllFailureSurfaced(t *testing.T) {
	st, _ := seeded(t)
	st.FailNext(errors.New("permission denied"))
	pub := &fakePublisher{}
	c := NewSettlementController(st, WithPublisher(pub))

	err := c.ClearAll(context.Background())
	var se *core.StoreError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Empty(t, pub.msgs)

	snap, _ := st.Snapshot(context.Background())
	assert.Len(t, snap.Expenses, 1)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.created()
	m.failed("x")
	m.Exported("csv", "ok")
}
