package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxReferenceLength bounds merchant order references, settlement
// references and transfer idempotency keys. It matches the VARCHAR(64)
// reference columns.
const MaxReferenceLength = 64

// IdempotencyLog represents a cached operation result to prevent double-processing.
type IdempotencyLog struct {
	Key           string    `json:"key"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildTransferIdempotencyKey scopes a client key to the sending account.
func BuildTransferIdempotencyKey(senderID uuid.UUID, clientKey string) string {
	return senderID.String() + ":transfer:" + clientKey
}

// BuildMintIdempotencyKey constructs the key for a confirmed payment.
func BuildMintIdempotencyKey(merchantID uuid.UUID, referenceID string) string {
	return merchantID.String() + ":mint:" + referenceID
}
