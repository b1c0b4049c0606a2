package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MerchantRate is the commission and reward configuration of a merchant.
// Rates are percentages: 15 means 15%.
type MerchantRate struct {
	MerchantID     uuid.UUID       `json:"merchant_id"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	RewardRate     decimal.Decimal `json:"reward_rate"`
	MaxRewardCap   int64           `json:"max_reward_cap"` // coins per payment, 0 = uncapped
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

var hundred = decimal.NewFromInt(100)

// Validate checks that both rates are within [0, 100] and the cap is not negative.
func (m *MerchantRate) Validate() bool {
	if m.CommissionRate.IsNegative() || m.CommissionRate.GreaterThan(hundred) {
		return false
	}
	if m.RewardRate.IsNegative() || m.RewardRate.GreaterThan(hundred) {
		return false
	}
	return m.MaxRewardCap >= 0
}
