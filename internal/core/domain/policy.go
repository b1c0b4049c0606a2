package domain

import "github.com/shopspring/decimal"

// RewardPolicy holds the platform-wide limits applied by the calculator and
// the transfer coordinator.
type RewardPolicy struct {
	// RetentionFraction is the share of a balance that may leave it in one operation.
	RetentionFraction decimal.Decimal
	// RevenueCapFraction is the share of a bill that may be paid in coins.
	RevenueCapFraction decimal.Decimal
	// RewardRateCeiling caps any merchant reward rate, in percent.
	RewardRateCeiling decimal.Decimal
}

// DefaultRewardPolicy returns 80% retention, 50% revenue cap and a 10% reward ceiling.
func DefaultRewardPolicy() RewardPolicy {
	return RewardPolicy{
		RetentionFraction:  decimal.RequireFromString("0.80"),
		RevenueCapFraction: decimal.RequireFromString("0.50"),
		RewardRateCeiling:  decimal.NewFromInt(10),
	}
}

// Validate reports whether every fraction lies in [0, 1] and the ceiling in [0, 100].
func (p RewardPolicy) Validate() bool {
	one := decimal.NewFromInt(1)
	for _, f := range []decimal.Decimal{p.RetentionFraction, p.RevenueCapFraction} {
		if f.IsNegative() || f.GreaterThan(one) {
			return false
		}
	}
	return !p.RewardRateCeiling.IsNegative() && !p.RewardRateCeiling.GreaterThan(hundred)
}
