package domain

import (
	"time"

	"github.com/google/uuid"
)

// SettlementStatus marks whether a day's earnings have passed the T+1 cutoff.
type SettlementStatus string

const (
	SettlementStatusPending SettlementStatus = "PENDING"
	SettlementStatusSettled SettlementStatus = "SETTLED"
)

// SettlementSummary is one (merchant, date) row derived from SUCCESS transactions.
type SettlementSummary struct {
	Date       string           `json:"date"` // YYYY-MM-DD in the settlement timezone
	Gross      int64            `json:"gross"`
	Commission int64            `json:"commission"`
	Net        int64            `json:"net"`
	Count      int64            `json:"count"`
	Status     SettlementStatus `json:"status"`
}

// SettlementReport is the full aggregation for a merchant as of a date.
type SettlementReport struct {
	MerchantID    uuid.UUID           `json:"merchant_id"`
	AsOf          string              `json:"as_of"`
	Rows          []SettlementSummary `json:"rows"`
	PendingPayout int64               `json:"pending_payout"`
	TotalSettled  int64               `json:"total_settled"`
}

// Settlement is a recorded payout draw-down against a merchant balance.
// Reference is unique per merchant.
type Settlement struct {
	ID           uuid.UUID `json:"id"`
	MerchantID   uuid.UUID `json:"merchant_id"`
	Amount       int64     `json:"amount"`
	Reference    string    `json:"reference"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}
