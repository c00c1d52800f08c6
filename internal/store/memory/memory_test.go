package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/core"
	"dividi/internal/store"
)

func input(desc string) core.ExpenseInput {
	return core.ExpenseInput{
		Description: desc,
		Amount:      decimal.RequireFromString("12.50"),
		PaidBy:      "A",
		Date:        time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStoreCreateAndSnapshot(t *testing.T) {
	s := New()
	id, err := s.Create(context.Background(), input("lunch"))
	if err != nil || id != "mem-1" {
		t.Fatalf("unexpected create: id=%q err=%v", id, err)
	}
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Revision != 1 || len(snap.Expenses) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Expenses[0].Settled || snap.Expenses[0].Description != "lunch" {
		t.Fatalf("unexpected expense: %+v", snap.Expenses[0])
	}
}

func TestMemoryStoreSubscribeEmitsImmediatelyAndOnChange(t *testing.T) {
	s := New()
	var got []store.Snapshot
	sub, err := s.Subscribe(context.Background(), func(snap store.Snapshot) { got = append(got, snap) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(got) != 1 || got[0].Revision != 0 || len(got[0].Expenses) != 0 {
		t.Fatalf("expected initial empty snapshot, got %+v", got)
	}

	id, _ := s.Create(context.Background(), input("a"))
	if err := s.MarkSettled(context.Background(), id); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(got) != 3 || !got[2].Expenses[0].Settled {
		t.Fatalf("expected settled snapshot, got %+v", got)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	_ = s.RemoveAll(context.Background())
	if len(got) != 3 {
		t.Fatalf("listener called after unsubscribe")
	}
	if s.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", s.Subscribers())
	}
}

func TestMemoryStoreMarkSettledIsUnguarded(t *testing.T) {
	s := New()
	id, _ := s.Create(context.Background(), input("a"))
	if err := s.MarkSettled(context.Background(), id); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if err := s.MarkSettled(context.Background(), id); err != nil {
		t.Fatalf("second settle: %v", err)
	}
	snap, _ := s.Snapshot(context.Background())
	if snap.Revision != 3 {
		t.Fatalf("expected two writes after create, revision=%d", snap.Revision)
	}
}

func TestMemoryStoreMarkSettledUnknown(t *testing.T) {
	s := New()
	err := s.MarkSettled(context.Background(), "nope")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreFailNext(t *testing.T) {
	s := New(core.Expense{Description: "seed", Amount: decimal.NewFromInt(1), PaidBy: "A"})
	s.FailNext(errors.New("disk full"))

	err := s.RemoveAll(context.Background())
	var se *core.StoreError
	if !errors.As(err, &se) || se.Op != "remove all" {
		t.Fatalf("expected store error, got %v", err)
	}
	snap, _ := s.Snapshot(context.Background())
	if len(snap.Expenses) != 1 {
		t.Fatalf("failed write must not change state")
	}
	if err := s.RemoveAll(context.Background()); err != nil {
		t.Fatalf("failure should be one-shot: %v", err)
	}
}
