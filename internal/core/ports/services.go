package ports

import (
	"context"
	"time"

	"coin-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// Caller roles carried in bearer tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
	Role      string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// --- Service Ports (Business Logic) ---

// AccountService opens accounts and answers balance/history queries.
type AccountService interface {
	OpenAccount(ctx context.Context, accountID uuid.UUID, kind domain.AccountKind) (*domain.Account, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransferService moves coins between two accounts atomically.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error)
}

// TransferRequest holds validated input for a peer-to-peer transfer.
type TransferRequest struct {
	SenderID       uuid.UUID
	ReceiverID     uuid.UUID
	Amount         int64
	IdempotencyKey string // optional
}

// Quote is the calculator's breakdown of a bill.
type Quote struct {
	GrossAmount      int64           `json:"gross_amount"`
	FiatAmount       int64           `json:"fiat_amount"`
	CoinsToRedeem    int64           `json:"coins_to_redeem"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount int64           `json:"commission_amount"`
	CoinsEarned      int64           `json:"coins_earned"`
	AmountNet        int64           `json:"amount_net"`
}

// PaymentRequest describes a fiat bill, optionally part-paid in coins.
type PaymentRequest struct {
	PayerID             uuid.UUID
	MerchantID          uuid.UUID
	GrossAmount         int64
	RequestedRedemption int64
	ReferenceID         string
}

// PaymentService drives the MINT lifecycle: quote, initiate, confirm.
type PaymentService interface {
	Quote(ctx context.Context, req PaymentRequest) (*Quote, error)
	Initiate(ctx context.Context, req PaymentRequest) (*domain.Transaction, error)
	Confirm(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error)
	Fail(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error)
	MintReward(ctx context.Context, req PaymentRequest) (*domain.Transaction, error)
}

// SettlementService aggregates merchant earnings and draws down payouts.
type SettlementService interface {
	Aggregate(ctx context.Context, merchantID uuid.UUID, asOf time.Time) (*domain.SettlementReport, error)
	Settle(ctx context.Context, merchantID uuid.UUID, amount int64, reference string) (*domain.Settlement, error)
	ListSettlements(ctx context.Context, merchantID uuid.UUID) ([]domain.Settlement, error)
}

// MerchantRateService reads and updates merchant rate profiles.
type MerchantRateService interface {
	GetRates(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantRate, error)
	UpdateRates(ctx context.Context, rate *domain.MerchantRate) (*domain.MerchantRate, error)
}

// ReconciliationService compares stored balances with the ledger history.
type ReconciliationService interface {
	Reconcile(ctx context.Context) (*domain.ReconciliationReport, error)
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
