package service

import (
	"context"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type merchantRateService struct {
	rateRepo ports.MerchantRateRepository
	log      zerolog.Logger
}

// NewMerchantRateService creates a new merchant rate service.
func NewMerchantRateService(rateRepo ports.MerchantRateRepository, log zerolog.Logger) ports.MerchantRateService {
	return &merchantRateService{rateRepo: rateRepo, log: log}
}

func (s *merchantRateService) GetRates(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantRate, error) {
	rate, err := s.rateRepo.Get(ctx, merchantID)
	if err != nil {
		return nil, storageError("get merchant rates", err)
	}
	if rate == nil {
		return nil, apperror.ErrNotFound("merchant rates")
	}
	return rate, nil
}

// UpdateRates replaces the merchant's rates. A reward rate above the policy
// ceiling is stored as given; the calculator applies the ceiling.
func (s *merchantRateService) UpdateRates(ctx context.Context, rate *domain.MerchantRate) (*domain.MerchantRate, error) {
	if rate == nil || rate.MerchantID == uuid.Nil {
		return nil, apperror.Validation("merchant id is required")
	}
	if !rate.Validate() {
		return nil, apperror.ErrInvalidRates()
	}

	now := time.Now().UTC()
	rate.CreatedAt = now
	rate.UpdatedAt = now
	if err := s.rateRepo.Upsert(ctx, rate); err != nil {
		return nil, storageError("upsert merchant rates", err)
	}

	s.log.Info().
		Str("merchant_id", rate.MerchantID.String()).
		Str("commission_rate", rate.CommissionRate.String()).
		Str("reward_rate", rate.RewardRate.String()).
		Int64("max_reward_cap", rate.MaxRewardCap).
		Msg("merchant rates updated")

	return s.GetRates(ctx, rate.MerchantID)
}
