package memory

import (
	"context"
	"sort"
	"time"

	"coin-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct{ s *Store }

// Accounts returns the account repository view of the store.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

func accountKey(id uuid.UUID) string { return "account:" + id.String() }

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.accounts[id]; ok {
		return copyAccount(a), nil
	}
	return nil, nil
}

func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := mt.lock(ctx, accountKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) (bool, error) {
	mt, err := asTx(tx)
	if err != nil {
		return false, err
	}
	if err := mt.lock(ctx, accountKey(a.ID)); err != nil {
		return false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.accounts[a.ID]; exists {
		return false, nil
	}
	c := copyAccount(a)
	c.Balance = 0
	r.s.accounts[a.ID] = c
	mt.journal(func() { delete(r.s.accounts, a.ID) })
	return true, nil
}

func (r *AccountRepo) Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	mt, err := asTx(tx)
	if err != nil {
		return 0, err
	}
	if err := mt.lock(ctx, accountKey(id)); err != nil {
		return 0, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	a, exists := r.s.accounts[id]
	if !exists {
		a = &domain.Account{ID: id, Kind: domain.AccountKindCustomer, CreatedAt: now}
		r.s.accounts[id] = a
		mt.journal(func() { delete(r.s.accounts, id) })
	} else {
		mt.journal(func() { a.Balance -= amount })
	}
	a.Balance += amount
	a.UpdatedAt = now
	return a.Balance, nil
}

func (r *AccountRepo) DebitIfSufficient(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, bool, error) {
	mt, err := asTx(tx)
	if err != nil {
		return 0, false, err
	}
	if err := mt.lock(ctx, accountKey(id)); err != nil {
		return 0, false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, exists := r.s.accounts[id]
	if !exists || a.Balance < amount {
		return 0, false, nil
	}
	a.Balance -= amount
	a.UpdatedAt = time.Now().UTC()
	mt.journal(func() { a.Balance += amount })
	return a.Balance, true, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}
