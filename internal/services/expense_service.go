package services

import (
	"context"
	"log/slog"

	"dividi/internal/amqp"
	"dividi/internal/core"
	"dividi/internal/store"
)

// ExpenseService records new expenses and announces them.
type ExpenseService struct {
	store        store.Creator
	participants core.Participants
	options
}

func NewExpenseService(st store.Creator, participants core.Participants, opts ...Option) *ExpenseService {
	return &ExpenseService{
		store:        st,
		participants: participants,
		options:      buildOptions(opts),
	}
}

// CreateExpense validates in, stamps the current time and stores it. The
// returned id is the one assigned by the store.
func (s *ExpenseService) CreateExpense(ctx context.Context, in core.ExpenseInput) (string, error) {
	in = in.Normalized()
	in.Date = s.now()
	if err := in.Validate(s.participants); err != nil {
		s.metrics.failed("create")
		return "", err
	}

	id, err := s.store.Create(ctx, in)
	if err != nil {
		s.metrics.failed("create")
		return "", core.AsStoreError("create", err)
	}
	s.metrics.created()

	key := core.MonthKeyOf(in.Date, s.location)
	slog.InfoContext(ctx, "Expense created",
		"id", id,
		"paid_by", in.PaidBy,
		"amount", in.Amount.String(),
		"month", key.String())

	s.publish(ctx, amqp.NewChangeMessage(amqp.ChangeCreated, id, key.Year, int(key.Month), s.origin))
	return id, nil
}

func (o *options) publish(ctx context.Context, msg *amqp.ChangeMessage) {
	if o.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping change message", "kind", msg.Kind)
		return
	}
	// The write already succeeded locally; a lost event only delays other
	// processes until their next resync.
	if err := o.publisher.PublishChange(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change message",
			"kind", msg.Kind, "expense_id", msg.ExpenseID, "error", err)
		return
	}
	o.metrics.published(msg.Kind)
}
