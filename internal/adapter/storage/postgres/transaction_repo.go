package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, reference_id, transaction_type, sender_account_id, receiver_account_id,
		amount_gross, amount_net, coins_redeemed, coins_earned, fiat_amount,
		commission_rate, commission_amount, status, created_at, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create appends a ledger record within a database transaction.
// A reused MINT reference yields ports.ErrDuplicateKey.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.ReferenceID, t.TransactionType, t.SenderAccountID, t.ReceiverAccountID,
		t.AmountGross, t.AmountNet, t.CoinsRedeemed, t.CoinsEarned, t.FiatAmount,
		t.CommissionRate, t.CommissionAmount, t.Status, t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransactionRow(r.pool.QueryRow(ctx, query, id))
}

// GetByReference fetches a MINT by receiving merchant and order reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE receiver_account_id = $1 AND reference_id = $2 AND transaction_type = 'MINT'`
	return scanTransactionRow(r.pool.QueryRow(ctx, query, merchantID, referenceID))
}

// GetByReferenceForUpdate is GetByReference with a row lock, so two
// confirmations of the same order serialize.
func (r *TransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE receiver_account_id = $1 AND reference_id = $2 AND transaction_type = 'MINT'
		FOR UPDATE`
	return scanTransactionRow(tx.QueryRow(ctx, query, merchantID, referenceID))
}

// UpdateStatus moves a CREATED record to a terminal status. The WHERE clause
// refuses to touch records that already left CREATED.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $1, processed_at = $2
		WHERE id = $3 AND status = 'CREATED'`

	tag, err := tx.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s not found or not CREATED", id)
	}
	return nil
}

// ListByAccount fetches records the account sent or received, newest first.
func (r *TransactionRepo) ListByAccount(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	conditions := []string{"(sender_account_id = $1 OR receiver_account_id = $1)"}
	args := []any{params.AccountID}
	argIdx := 2

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transactions "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	txns, err := r.queryTransactions(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// ListByMerchantAndStatus fetches records received by the merchant, oldest first.
func (r *TransactionRepo) ListByMerchantAndStatus(ctx context.Context, merchantID uuid.UUID, status domain.TransactionStatus) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE receiver_account_id = $1 AND status = $2
		ORDER BY created_at, id`
	return r.queryTransactions(ctx, query, merchantID, status)
}

func (r *TransactionRepo) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

func scanTransaction(row rowScanner, t *domain.Transaction) error {
	return row.Scan(
		&t.ID, &t.ReferenceID, &t.TransactionType, &t.SenderAccountID, &t.ReceiverAccountID,
		&t.AmountGross, &t.AmountNet, &t.CoinsRedeemed, &t.CoinsEarned, &t.FiatAmount,
		&t.CommissionRate, &t.CommissionAmount, &t.Status, &t.CreatedAt, &t.ProcessedAt,
	)
}

func scanTransactionRow(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	if err := scanTransaction(row, t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}
