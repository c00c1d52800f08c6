// Package memory is an in-process expense store used by tests and by the
// memory backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"dividi/internal/core"
	"dividi/internal/store"
)

type Store struct {
	mu       sync.Mutex
	rev      uint64
	seq      int
	items    []core.Expense
	failNext error

	hub store.Hub
}

func New(seed ...core.Expense) *Store {
	s := &Store{}
	for _, e := range seed {
		s.seq++
		if e.ID == "" {
			e.ID = fmt.Sprintf("mem-%d", s.seq)
		}
		s.items = append(s.items, e)
	}
	return s
}

// FailNext arranges for the next write to return err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) Subscribe(_ context.Context, fn store.Listener) (*store.Subscription, error) {
	sub := s.hub.Add(fn)
	fn(s.snapshot())
	return sub, nil
}

func (s *Store) Snapshot(_ context.Context) (store.Snapshot, error) {
	return s.snapshot(), nil
}

// Create stores the expense and returns a synthetic id.
func (s *Store) Create(_ context.Context, in core.ExpenseInput) (string, error) {
	in = in.Normalized()
	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return "", core.AsStoreError("create", err)
	}
	s.seq++
	id := fmt.Sprintf("mem-%d", s.seq)
	s.items = append(s.items, core.Expense{
		ID:          id,
		Description: in.Description,
		Amount:      in.Amount,
		PaidBy:      in.PaidBy,
		Date:        in.Date,
	})
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Broadcast(snap)
	return id, nil
}

func (s *Store) MarkSettled(_ context.Context, id string) error {
	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return core.AsStoreError("mark settled", err)
	}
	idx := -1
	for i := range s.items {
		if s.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return &core.NotFoundError{ID: id}
	}
	s.items[idx].Settled = true
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Broadcast(snap)
	return nil
}

func (s *Store) RemoveAll(_ context.Context) error {
	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return core.AsStoreError("remove all", err)
	}
	s.items = nil
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Broadcast(snap)
	return nil
}

// Subscribers reports how many listeners are attached.
func (s *Store) Subscribers() int { return s.hub.Len() }

func (s *Store) snapshot() store.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Snapshot{Revision: s.rev, Expenses: append([]core.Expense(nil), s.items...)}
}

func (s *Store) bumpLocked() store.Snapshot {
	s.rev++
	return store.Snapshot{Revision: s.rev, Expenses: append([]core.Expense(nil), s.items...)}
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

var _ store.ExpenseStore = (*Store)(nil)
