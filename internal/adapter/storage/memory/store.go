// Package memory is an in-process ledger store. It mirrors the postgres
// adapter's contract: row locks held until commit, conditional debits, and
// rollback of every write made inside a transaction.
package memory

import (
	"context"
	"errors"
	"sync"

	"coin-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNoSQL = errors.New("memory store does not execute SQL")

// Store holds every table of the ledger in maps guarded by one mutex. Row
// locks are tracked separately so a transaction can hold them across calls.
//
// Writes land in the maps before commit, so readers that need a committed
// view (Snapshot) wait until no transaction is open. Begin yields to a
// waiting snapshot so steady write load cannot starve it.
type Store struct {
	mu   sync.Mutex
	cond *sync.Cond

	owners    map[string]*Tx
	open      int
	snapshots int

	accounts       map[uuid.UUID]*domain.Account
	transactions   map[uuid.UUID]*domain.Transaction
	txnOrder       []uuid.UUID
	mintRefs       map[string]uuid.UUID
	rates          map[uuid.UUID]*domain.MerchantRate
	settlements    []*domain.Settlement
	settlementRefs map[string]int
	idempotency    map[string]*domain.IdempotencyLog
	audit          []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{
		owners:         make(map[string]*Tx),
		accounts:       make(map[uuid.UUID]*domain.Account),
		transactions:   make(map[uuid.UUID]*domain.Transaction),
		mintRefs:       make(map[string]uuid.UUID),
		rates:          make(map[uuid.UUID]*domain.MerchantRate),
		settlementRefs: make(map[string]int),
		idempotency:    make(map[string]*domain.IdempotencyLog),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.wait(ctx, func() bool { return s.snapshots == 0 }); err != nil {
		return nil, err
	}
	s.open++
	return &Tx{store: s, held: make(map[string]struct{})}, nil
}

// wait blocks on cond until ready holds or ctx is done. Caller holds mu.
func (s *Store) wait(ctx context.Context, ready func() bool) error {
	if ready() {
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()
	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// quiesce waits until every open transaction has finished and holds new
// ones back meanwhile. On success the caller still holds mu and sees only
// committed state.
func (s *Store) quiesce(ctx context.Context) error {
	s.snapshots++
	err := s.wait(ctx, func() bool { return s.open == 0 })
	s.snapshots--
	s.cond.Broadcast()
	return err
}

// Tx is a memory transaction. Writes are applied immediately and journaled;
// Rollback replays the journal backwards.
type Tx struct {
	store *Store
	held  map[string]struct{}
	undo  []func()
	done  bool
}

// lock blocks until the row key is free or already ours, or ctx ends.
func (t *Tx) lock(ctx context.Context, key string) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	err := s.wait(ctx, func() bool {
		owner, taken := s.owners[key]
		return !taken || owner == t
	})
	if err != nil {
		return err
	}
	s.owners[key] = t
	t.held[key] = struct{}{}
	return nil
}

// journal records a compensating action. Caller holds store.mu.
func (t *Tx) journal(fn func()) {
	t.undo = append(t.undo, fn)
}

// release frees every row lock. Caller holds store.mu.
func (t *Tx) release() {
	for key := range t.held {
		delete(t.store.owners, key)
	}
	t.held = nil
	t.done = true
	t.store.open--
	t.store.cond.Broadcast()
}

func (t *Tx) Commit(ctx context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.undo = nil
	t.release()
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.release()
	return nil
}

// Begin on an open transaction returns the same transaction; nested
// savepoints are not modeled.
func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errNoSQL
}
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errNoSQL
}
func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errNoSQL
}
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNoSQL
}
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *Tx) Conn() *pgx.Conn                                             { return nil }

func asTx(tx pgx.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt == nil {
		return nil, errors.New("memory store: foreign transaction")
	}
	return mt, nil
}

// HealthCheck implements ports.HealthChecker for the memory store.
type HealthCheck struct{}

func (HealthCheck) Ping(ctx context.Context) error { return ctx.Err() }
func (HealthCheck) Name() string                   { return "memory" }
