package service

import (
	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculationInput is everything the calculator needs to split a bill.
type CalculationInput struct {
	GrossAmount         int64
	RequestedRedemption int64
	PayerBalance        int64
	Rates               domain.MerchantRate
}

// Calculator derives redemption, commission and reward amounts from a bill.
// It performs no I/O; the same input always yields the same quote.
type Calculator struct {
	policy domain.RewardPolicy
}

// NewCalculator creates a calculator bound to the platform policy.
func NewCalculator(policy domain.RewardPolicy) *Calculator {
	return &Calculator{policy: policy}
}

// Policy returns the limits the calculator applies.
func (c *Calculator) Policy() domain.RewardPolicy {
	return c.policy
}

// RetentionCap is the largest amount that may leave a balance in one operation.
func RetentionCap(balance int64, fraction decimal.Decimal) int64 {
	if balance <= 0 {
		return 0
	}
	return decimal.NewFromInt(balance).Mul(fraction).Floor().IntPart()
}

// Calculate splits a gross bill into its coin and fiat legs.
//
// Commission is charged on the gross amount so redemption never dilutes it.
// Coins are earned on the fiat leg only: a fully coin-paid bill earns nothing.
func (c *Calculator) Calculate(in CalculationInput) (*ports.Quote, error) {
	if in.GrossAmount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	retentionCap := RetentionCap(in.PayerBalance, c.policy.RetentionFraction)
	revenueCap := decimal.NewFromInt(in.GrossAmount).Mul(c.policy.RevenueCapFraction).Floor().IntPart()

	redeem := min(retentionCap, revenueCap, in.RequestedRedemption)
	if redeem < 0 {
		redeem = 0
	}
	// Payment rails reject a zero fiat leg.
	if redeem == in.GrossAmount {
		redeem--
	}
	fiat := in.GrossAmount - redeem

	commissionRate := in.Rates.CommissionRate
	commission := decimal.NewFromInt(in.GrossAmount).Mul(commissionRate).Div(hundred).Round(0).IntPart()

	rewardRate := decimal.Min(in.Rates.RewardRate, c.policy.RewardRateCeiling)
	earned := decimal.NewFromInt(fiat).Mul(rewardRate).Div(hundred).Floor().IntPart()
	if in.Rates.MaxRewardCap > 0 && earned > in.Rates.MaxRewardCap {
		earned = in.Rates.MaxRewardCap
	}

	return &ports.Quote{
		GrossAmount:      in.GrossAmount,
		FiatAmount:       fiat,
		CoinsToRedeem:    redeem,
		CommissionRate:   commissionRate,
		CommissionAmount: commission,
		CoinsEarned:      earned,
		AmountNet:        in.GrossAmount - commission,
	}, nil
}
