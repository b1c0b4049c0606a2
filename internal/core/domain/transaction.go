package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of coin movement.
type TransactionType string

const (
	TransactionTypeMint     TransactionType = "MINT"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusCreated TransactionStatus = "CREATED"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Transaction is an append-only ledger record. Once SUCCESS it is immutable
// and it is the only input to settlement aggregation.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	ReferenceID       string            `json:"reference_id"`
	TransactionType   TransactionType   `json:"transaction_type"`
	SenderAccountID   *uuid.UUID        `json:"sender_account_id,omitempty"` // nil for system mints
	ReceiverAccountID uuid.UUID         `json:"receiver_account_id"`
	AmountGross       int64             `json:"amount_gross"`
	AmountNet         int64             `json:"amount_net"`
	CoinsRedeemed     int64             `json:"coins_redeemed"`
	CoinsEarned       int64             `json:"coins_earned"`
	FiatAmount        int64             `json:"fiat_amount"`
	CommissionRate    decimal.Decimal   `json:"commission_rate"` // percent of gross
	CommissionAmount  int64             `json:"commission_amount"`
	Status            TransactionStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	ProcessedAt       *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSuccess ||
		t.Status == TransactionStatusFailed
}

// CanTransitionTo reports whether the status change is allowed. Only
// CREATED -> SUCCESS and CREATED -> FAILED exist.
func (t *Transaction) CanTransitionTo(next TransactionStatus) bool {
	if t.Status != TransactionStatusCreated {
		return false
	}
	return next == TransactionStatusSuccess || next == TransactionStatusFailed
}

// PayerAccountID returns the account that paid for a mint, if any.
func (t *Transaction) PayerAccountID() (uuid.UUID, bool) {
	if t.SenderAccountID == nil {
		return uuid.Nil, false
	}
	return *t.SenderAccountID, true
}

// BalanceDeltas returns the per-account balance change a SUCCESS record
// applied. Mints debit redeemed coins from the payer, credit earned coins to
// the payer and credit the net amount to the merchant.
func (t *Transaction) BalanceDeltas() map[uuid.UUID]int64 {
	deltas := make(map[uuid.UUID]int64, 2)
	if t.Status != TransactionStatusSuccess {
		return deltas
	}
	switch t.TransactionType {
	case TransactionTypeTransfer:
		if t.SenderAccountID != nil {
			deltas[*t.SenderAccountID] -= t.AmountGross
		}
		deltas[t.ReceiverAccountID] += t.AmountGross
	case TransactionTypeMint:
		if payer, ok := t.PayerAccountID(); ok {
			deltas[payer] += t.CoinsEarned - t.CoinsRedeemed
		}
		deltas[t.ReceiverAccountID] += t.AmountNet
	}
	return deltas
}
