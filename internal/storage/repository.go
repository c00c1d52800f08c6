package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"dividi/internal/core"
	"dividi/internal/store"

	_ "modernc.org/sqlite"
)

const dateFormat = time.RFC3339Nano

// SQLiteRepository is the durable expense store. Every write bumps a shared
// revision row so processes using the same file agree on ordering.
type SQLiteRepository struct {
	db    *sql.DB
	newID func() string

	hub     store.Hub
	mu      sync.Mutex
	seen    bool
	lastRev uint64
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, newID: uuid.NewString}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Subscribe(ctx context.Context, fn store.Listener) (*store.Subscription, error) {
	sub := r.hub.Add(fn)
	snap, err := r.Snapshot(ctx)
	if err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	r.observe(snap.Revision)
	fn(snap)
	return sub, nil
}

func (r *SQLiteRepository) Snapshot(ctx context.Context) (store.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return store.Snapshot{}, core.AsStoreError("snapshot", err)
	}
	defer tx.Rollback()

	snap, err := readSnapshot(ctx, tx)
	if err != nil {
		return store.Snapshot{}, core.AsStoreError("snapshot", err)
	}
	return snap, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, in core.ExpenseInput) (string, error) {
	in = in.Normalized()
	id := r.newID()
	err := r.write(ctx, "create", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (id, description, amount, paid_by, date, settled) VALUES (?, ?, ?, ?, ?, 0)`,
			id, in.Description, in.Amount.String(), in.PaidBy, in.Date.UTC().Format(dateFormat))
		return err
	})
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"amount", in.Amount.String(),
		"paid_by", in.PaidBy)
	return id, nil
}

func (r *SQLiteRepository) MarkSettled(ctx context.Context, id string) error {
	return r.write(ctx, "mark settled", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE expenses SET settled = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &core.NotFoundError{ID: id}
		}
		return nil
	})
}

func (r *SQLiteRepository) RemoveAll(ctx context.Context) error {
	return r.write(ctx, "remove all", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM expenses`)
		return err
	})
}

// Refresh re-reads the database and notifies subscribers when another
// process has written since the last broadcast.
func (r *SQLiteRepository) Refresh(ctx context.Context) error {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	if r.observe(snap.Revision) {
		r.hub.Broadcast(snap)
	}
	return nil
}

func (r *SQLiteRepository) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.AsStoreError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return core.AsStoreError(op, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE store_revision SET value = value + 1 WHERE id = 1`); err != nil {
		return core.AsStoreError(op, err)
	}
	snap, err := readSnapshot(ctx, tx)
	if err != nil {
		return core.AsStoreError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return core.AsStoreError(op, err)
	}

	if r.observe(snap.Revision) {
		r.hub.Broadcast(snap)
	}
	return nil
}

// observe records rev and reports whether it is newer than anything seen.
func (r *SQLiteRepository) observe(rev uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen && rev <= r.lastRev {
		return false
	}
	r.seen = true
	r.lastRev = rev
	return true
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readSnapshot(ctx context.Context, q queryer) (store.Snapshot, error) {
	var rev int64
	if err := q.QueryRowContext(ctx, `SELECT value FROM store_revision WHERE id = 1`).Scan(&rev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Snapshot{}, errors.New("revision row missing")
		}
		return store.Snapshot{}, fmt.Errorf("read revision: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, description, amount, paid_by, date, settled FROM expenses ORDER BY seq`)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			e       core.Expense
			date    string
			settled int64
		)
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &e.PaidBy, &date, &settled); err != nil {
			return store.Snapshot{}, fmt.Errorf("scan expense: %w", err)
		}
		e.Date, err = time.Parse(dateFormat, date)
		if err != nil {
			return store.Snapshot{}, fmt.Errorf("parse date of %s: %w", e.ID, err)
		}
		e.Settled = settled != 0
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return store.Snapshot{}, fmt.Errorf("iterate expenses: %w", err)
	}
	return store.Snapshot{Revision: uint64(rev), Expenses: expenses}, nil
}

var _ store.ExpenseStore = (*SQLiteRepository)(nil)
