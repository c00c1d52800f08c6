// Package store defines the expense store boundary consumed by the core and
// the notification plumbing shared by its adapters.
package store

import (
	"context"

	"dividi/internal/core"
)

// Snapshot is the full list of expenses at one revision, in creation order.
type Snapshot struct {
	Revision uint64
	Expenses []core.Expense
}

// Clone returns a copy whose expense slice can be handed to another owner.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Revision: s.Revision, Expenses: append([]core.Expense(nil), s.Expenses...)}
}

// Listener receives a snapshot after every change.
type Listener func(Snapshot)

// Ports for the expense store collaborator.
type (
	Subscriber interface {
		// Subscribe delivers the current snapshot right away and a new one
		// after every change until the subscription is cancelled.
		Subscribe(ctx context.Context, fn Listener) (*Subscription, error)
	}

	Reader interface {
		// Snapshot reads the current expenses once.
		Snapshot(ctx context.Context) (Snapshot, error)
	}

	Creator interface {
		// Create stores a new unsettled expense and returns its generated id.
		Create(ctx context.Context, in core.ExpenseInput) (id string, err error)
	}

	Settler interface {
		// MarkSettled sets settled=true on the expense. The write happens even
		// if the expense is already settled. Unknown ids yield core.ErrNotFound.
		MarkSettled(ctx context.Context, id string) error
	}

	Clearer interface {
		// RemoveAll deletes every expense.
		RemoveAll(ctx context.Context) error
	}

	// ExpenseStore is the whole boundary.
	ExpenseStore interface {
		Subscriber
		Reader
		Creator
		Settler
		Clearer
	}
)
