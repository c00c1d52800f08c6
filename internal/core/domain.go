package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// MaxDescriptionLength bounds the free-text description of an expense, in
// characters.
const MaxDescriptionLength = 200

type (
	// Expense is one shared expense as held by the store.
	Expense struct {
		ID          string
		Description string
		Amount      decimal.Decimal
		PaidBy      string
		Date        time.Time // creation time, never mutated
		Settled     bool
	}

	// ExpenseInput carries the user-supplied fields of a new expense.
	// The store assigns the ID and a new expense always starts unsettled.
	ExpenseInput struct {
		Description string
		Amount      decimal.Decimal
		PaidBy      string
		Date        time.Time
	}

	// Participants is the fixed, ordered set of people sharing expenses.
	Participants struct {
		names []string
	}
)

// NewParticipants builds the participant set from configuration.
// Names are trimmed; the set must be non-empty and free of duplicates.
func NewParticipants(names ...string) (Participants, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			return Participants{}, fmt.Errorf("duplicate participant %q", n)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return Participants{}, errors.New("at least one participant is required")
	}
	return Participants{names: out}, nil
}

// MustParticipants is NewParticipants for static configuration; it panics on error.
func MustParticipants(names ...string) Participants {
	p, err := NewParticipants(names...)
	if err != nil {
		panic(err)
	}
	return p
}

// Names returns a copy of the participant names in configured order.
func (p Participants) Names() []string {
	return append([]string(nil), p.names...)
}

// Len returns the number of participants.
func (p Participants) Len() int {
	return len(p.names)
}

// Contains reports whether name belongs to the set.
func (p Participants) Contains(name string) bool {
	for _, n := range p.names {
		if n == name {
			return true
		}
	}
	return false
}

// Validate rejects a participant outside the closed set.
func (p Participants) Validate(name string) error {
	if !p.Contains(name) {
		return &ValidationError{Field: "paid_by", Err: fmt.Errorf("%w: %q", ErrUnknownParticipant, name)}
	}
	return nil
}

// Validate checks an input at the boundary, before it reaches the store.
func (in ExpenseInput) Validate(participants Participants) error {
	desc := in.Normalized().Description
	if desc == "" {
		return &ValidationError{Field: "description", Err: ErrEmptyDescription}
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	if err := participants.Validate(in.PaidBy); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Err: errors.New("date cannot be zero")}
	}
	return nil
}

// Normalized returns the input with its description trimmed and in Unicode
// normalization form C, so the length limit counts composed characters.
func (in ExpenseInput) Normalized() ExpenseInput {
	in.Description = norm.NFC.String(strings.TrimSpace(in.Description))
	return in
}

// Unsettled returns the expenses that still count toward balances.
func Unsettled(expenses []Expense) []Expense {
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if !e.Settled {
			out = append(out, e)
		}
	}
	return out
}
