package postgres

import (
	"context"
	"errors"
	"fmt"

	"coin-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRateRepo implements ports.MerchantRateRepository.
type MerchantRateRepo struct {
	pool Pool
}

// NewMerchantRateRepo creates a new MerchantRateRepo.
func NewMerchantRateRepo(pool Pool) *MerchantRateRepo {
	return &MerchantRateRepo{pool: pool}
}

// Get fetches a merchant's rate profile. Returns nil, nil if none is configured.
func (r *MerchantRateRepo) Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantRate, error) {
	query := `SELECT merchant_id, commission_rate, reward_rate, max_reward_cap, created_at, updated_at
		FROM merchant_rates WHERE merchant_id = $1`

	m := &domain.MerchantRate{}
	err := r.pool.QueryRow(ctx, query, merchantID).Scan(
		&m.MerchantID, &m.CommissionRate, &m.RewardRate, &m.MaxRewardCap, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant rates: %w", err)
	}
	return m, nil
}

// Upsert creates or replaces a merchant's rate profile.
func (r *MerchantRateRepo) Upsert(ctx context.Context, m *domain.MerchantRate) error {
	query := `INSERT INTO merchant_rates (merchant_id, commission_rate, reward_rate, max_reward_cap, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (merchant_id) DO UPDATE
		SET commission_rate = EXCLUDED.commission_rate,
			reward_rate = EXCLUDED.reward_rate,
			max_reward_cap = EXCLUDED.max_reward_cap,
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		m.MerchantID, m.CommissionRate, m.RewardRate, m.MaxRewardCap, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert merchant rates: %w", err)
	}
	return nil
}
