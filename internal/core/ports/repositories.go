package ports

import (
	"context"
	"errors"

	"coin-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateKey is returned by repositories when an insert violates a
// uniqueness constraint (reference per merchant, idempotency key).
var ErrDuplicateKey = errors.New("duplicate key")

// AccountRepository defines persistence operations for coin balances.
// Methods accepting pgx.Tx are used inside transaction blocks; the
// ForUpdate variant takes a row lock held until the transaction ends.
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	// Create inserts a zero-balance account. Returns false if it already existed.
	Create(ctx context.Context, tx pgx.Tx, account *domain.Account) (bool, error)
	// Credit adds amount, creating a CUSTOMER account if absent. Returns the new balance.
	Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	// DebitIfSufficient subtracts amount only if balance >= amount.
	// applied is false when the account is missing or short.
	DebitIfSufficient(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (balance int64, applied bool, err error)
	List(ctx context.Context) ([]domain.Account, error)
}

// TransactionRepository defines persistence operations for ledger records.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// GetByReference looks up a MINT by the receiving merchant's order reference.
	GetByReference(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	// ListByAccount returns records where the account is sender or receiver, newest first.
	ListByAccount(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	// ListByMerchantAndStatus returns records received by the merchant in the given status.
	ListByMerchantAndStatus(ctx context.Context, merchantID uuid.UUID, status domain.TransactionStatus) ([]domain.Transaction, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	AccountID uuid.UUID
	Status    *domain.TransactionStatus
	Type      *domain.TransactionType
	Page      int
	PageSize  int
}

// MerchantRateRepository persists merchant commission and reward rates.
type MerchantRateRepository interface {
	Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantRate, error)
	Upsert(ctx context.Context, rate *domain.MerchantRate) error
}

// SettlementRepository persists payout draw-downs.
type SettlementRepository interface {
	// Create returns ErrDuplicateKey if the merchant already used the reference.
	Create(ctx context.Context, tx pgx.Tx, settlement *domain.Settlement) error
	GetByReference(ctx context.Context, merchantID uuid.UUID, reference string) (*domain.Settlement, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Settlement, error)
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// LedgerRepository derives balances from the ledger history.
type LedgerRepository interface {
	// Snapshot reads every stored balance and folds SUCCESS records and
	// settlements into per-account expected balances, both from the same
	// committed state.
	Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
