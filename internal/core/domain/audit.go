package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionOpenAccount     AuditAction = "OPEN_ACCOUNT"
	AuditActionTransfer        AuditAction = "TRANSFER"
	AuditActionPaymentInitiate AuditAction = "PAYMENT_INITIATE"
	AuditActionPaymentConfirm  AuditAction = "PAYMENT_CONFIRM"
	AuditActionPaymentFail     AuditAction = "PAYMENT_FAIL"
	AuditActionMint            AuditAction = "MINT"
	AuditActionSettle          AuditAction = "SETTLE"
	AuditActionUpdateRates     AuditAction = "UPDATE_RATES"
	AuditActionReconcile       AuditAction = "RECONCILE"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	AccountID    *uuid.UUID  `json:"account_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
