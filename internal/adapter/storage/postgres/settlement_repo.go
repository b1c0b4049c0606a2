package postgres

import (
	"context"
	"errors"
	"fmt"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	pool Pool
}

// NewSettlementRepo creates a new SettlementRepo.
func NewSettlementRepo(pool Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

// Create records a payout inside the draw-down transaction.
func (r *SettlementRepo) Create(ctx context.Context, tx pgx.Tx, s *domain.Settlement) error {
	query := `INSERT INTO settlements (id, merchant_id, amount, reference, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query, s.ID, s.MerchantID, s.Amount, s.Reference, s.BalanceAfter, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByReference fetches a settlement by merchant and payout reference.
func (r *SettlementRepo) GetByReference(ctx context.Context, merchantID uuid.UUID, reference string) (*domain.Settlement, error) {
	query := `SELECT id, merchant_id, amount, reference, balance_after, created_at
		FROM settlements WHERE merchant_id = $1 AND reference = $2`

	s := &domain.Settlement{}
	err := r.pool.QueryRow(ctx, query, merchantID, reference).Scan(
		&s.ID, &s.MerchantID, &s.Amount, &s.Reference, &s.BalanceAfter, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settlement by reference: %w", err)
	}
	return s, nil
}

// ListByMerchant returns a merchant's payouts, newest first.
func (r *SettlementRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Settlement, error) {
	query := `SELECT id, merchant_id, amount, reference, balance_after, created_at
		FROM settlements WHERE merchant_id = $1 ORDER BY created_at DESC, id`

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var s domain.Settlement
		if err := rows.Scan(&s.ID, &s.MerchantID, &s.Amount, &s.Reference, &s.BalanceAfter, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan settlement row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement rows: %w", err)
	}
	return out, nil
}
