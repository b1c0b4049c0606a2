package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountKind distinguishes paying customers from merchants.
type AccountKind string

const (
	AccountKindCustomer AccountKind = "CUSTOMER"
	AccountKindMerchant AccountKind = "MERCHANT"
)

// Account holds the coin balance of a single user. Balance is in the smallest
// coin unit and is never negative.
type Account struct {
	ID        uuid.UUID   `json:"id"`
	Kind      AccountKind `json:"kind"`
	Balance   int64       `json:"balance"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// IsMerchant returns true if the account belongs to a merchant.
func (a *Account) IsMerchant() bool {
	return a.Kind == AccountKindMerchant
}
