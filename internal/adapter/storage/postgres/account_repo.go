package postgres

import (
	"context"
	"errors"
	"fmt"

	"coin-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements ports.AccountRepository. Balances change only
// through single-statement conditional updates so a concurrent writer can
// never drive a balance below zero.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, kind, balance, created_at, updated_at`

// GetByID fetches an account without locking.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id), "get account by id")
}

// GetByIDForUpdate fetches an account and locks its row until tx ends.
// This MUST be called within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(tx.QueryRow(ctx, query, id), "get account for update")
}

// Create inserts a zero-balance account unless one already exists.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) (bool, error) {
	query := `INSERT INTO accounts (id, kind, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	tag, err := tx.Exec(ctx, query, a.ID, a.Kind, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Credit adds amount to the balance, creating a CUSTOMER account on first credit.
func (r *AccountRepo) Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	query := `INSERT INTO accounts (id, kind, balance, created_at, updated_at)
		VALUES ($1, 'CUSTOMER', $2, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance`

	var balance int64
	if err := tx.QueryRow(ctx, query, id, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}
	return balance, nil
}

// DebitIfSufficient subtracts amount only when the balance covers it.
func (r *AccountRepo) DebitIfSufficient(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, bool, error) {
	query := `UPDATE accounts SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
		RETURNING balance`

	var balance int64
	err := tx.QueryRow(ctx, query, amount, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("debit account: %w", err)
	}
	return balance, true, nil
}

// List returns every account ordered by id.
func (r *AccountRepo) List(ctx context.Context) ([]domain.Account, error) {
	return listAccounts(ctx, r.pool)
}

func listAccounts(ctx context.Context, q querier) ([]domain.Account, error) {
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Kind, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row, op string) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(&a.ID, &a.Kind, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}
