package services

import (
	"context"
	"log/slog"

	"dividi/internal/amqp"
	"dividi/internal/core"
	"dividi/internal/store"
)

// SettlementStore is the part of the store the settlement controller writes to.
type SettlementStore interface {
	store.Reader
	store.Settler
	store.Clearer
}

// SettlementController applies the two destructive-ish transitions: settling
// one expense and removing all of them.
type SettlementController struct {
	store SettlementStore
	options
}

func NewSettlementController(st SettlementStore, opts ...Option) *SettlementController {
	return &SettlementController{store: st, options: buildOptions(opts)}
}

// MarkSettled flips the expense to settled. It writes even when the expense
// is already settled. Unknown ids return a *core.NotFoundError.
func (c *SettlementController) MarkSettled(ctx context.Context, id string) error {
	if err := c.store.MarkSettled(ctx, id); err != nil {
		c.metrics.failed("settle")
		return core.AsStoreError("mark settled", err)
	}
	c.metrics.settled()
	slog.InfoContext(ctx, "Expense settled", "id", id)

	var year, month int
	if e, ok := c.lookup(ctx, id); ok {
		key := core.MonthKeyOf(e.Date, c.location)
		year, month = key.Year, int(key.Month)
	}
	c.publish(ctx, amqp.NewChangeMessage(amqp.ChangeSettled, id, year, month, c.origin))
	return nil
}

// ClearAll removes every expense. Callers must have obtained confirmation.
func (c *SettlementController) ClearAll(ctx context.Context) error {
	if err := c.store.RemoveAll(ctx); err != nil {
		c.metrics.failed("clear")
		return core.AsStoreError("remove all", err)
	}
	c.metrics.cleared()
	slog.WarnContext(ctx, "All expenses cleared")

	c.publish(ctx, amqp.NewChangeMessage(amqp.ChangeCleared, "", 0, 0, c.origin))
	return nil
}

func (c *SettlementController) lookup(ctx context.Context, id string) (core.Expense, bool) {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Could not read expense month for change event", "id", id, "error", err)
		return core.Expense{}, false
	}
	for _, e := range snap.Expenses {
		if e.ID == id {
			return e, true
		}
	}
	return core.Expense{}, false
}
