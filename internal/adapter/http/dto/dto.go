package dto

// OpenAccountRequest is the request body for opening the caller's account.
type OpenAccountRequest struct {
	Kind string `json:"kind" binding:"omitempty,oneof=CUSTOMER MERCHANT"`
}

// TransferRequest is the request body for a peer-to-peer coin transfer.
// The idempotency key may also arrive in the Idempotency-Key header.
type TransferRequest struct {
	ReceiverID     string `json:"receiver_id" binding:"required,uuid"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key,omitempty" binding:"omitempty,max=64,safe_id"`
}

// QuoteRequest is the request body for a payment quote. The payer is the caller.
type QuoteRequest struct {
	MerchantID    string `json:"merchant_id" binding:"required,uuid"`
	GrossAmount   int64  `json:"gross_amount" binding:"required,gt=0"`
	CoinsToRedeem int64  `json:"coins_to_redeem" binding:"gte=0"`
}

// InitiatePaymentRequest opens a CREATED mint under the merchant's order reference.
type InitiatePaymentRequest struct {
	QuoteRequest
	ReferenceID string `json:"reference_id" binding:"required,max=64,safe_id"`
}

// GatewayEventRequest is the signed confirmation or failure of a payment.
type GatewayEventRequest struct {
	MerchantID  string `json:"merchant_id" binding:"required,uuid"`
	ReferenceID string `json:"reference_id" binding:"required,max=64,safe_id"`
}

// MintRequest is a signed one-shot payment: initiate and confirm together.
type MintRequest struct {
	PayerID       string `json:"payer_id" binding:"required,uuid"`
	MerchantID    string `json:"merchant_id" binding:"required,uuid,nefield=PayerID"`
	GrossAmount   int64  `json:"gross_amount" binding:"required,gt=0"`
	CoinsToRedeem int64  `json:"coins_to_redeem" binding:"gte=0"`
	ReferenceID   string `json:"reference_id" binding:"required,max=64,safe_id"`
}

// UpdateRatesRequest replaces the caller's merchant rates. Rates are
// decimal strings in percent, e.g. "2.5".
type UpdateRatesRequest struct {
	CommissionRate string `json:"commission_rate" binding:"required,percent"`
	RewardRate     string `json:"reward_rate" binding:"required,percent"`
	MaxRewardCap   int64  `json:"max_reward_cap" binding:"gte=0"`
}

// SettleRequest draws a payout down from the caller's merchant balance.
type SettleRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"required,max=64,safe_id"`
}

// AccountResponse is the response body for an account.
type AccountResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

// TransactionResponse is the response body for a ledger record.
type TransactionResponse struct {
	ID                string  `json:"id"`
	ReferenceID       string  `json:"reference_id,omitempty"`
	TransactionType   string  `json:"transaction_type"`
	SenderAccountID   *string `json:"sender_account_id,omitempty"`
	ReceiverAccountID string  `json:"receiver_account_id"`
	AmountGross       int64   `json:"amount_gross"`
	AmountNet         int64   `json:"amount_net"`
	FiatAmount        int64   `json:"fiat_amount"`
	CoinsRedeemed     int64   `json:"coins_redeemed"`
	CoinsEarned       int64   `json:"coins_earned"`
	CommissionRate    string  `json:"commission_rate"`
	CommissionAmount  int64   `json:"commission_amount"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at"`
	ProcessedAt       *string `json:"processed_at,omitempty"`
}

// TransactionListResponse wraps paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// QuoteResponse is the calculator breakdown of a bill.
type QuoteResponse struct {
	GrossAmount      int64  `json:"gross_amount"`
	FiatAmount       int64  `json:"fiat_amount"`
	CoinsToRedeem    int64  `json:"coins_to_redeem"`
	CommissionRate   string `json:"commission_rate"`
	CommissionAmount int64  `json:"commission_amount"`
	CoinsEarned      int64  `json:"coins_earned"`
	AmountNet        int64  `json:"amount_net"`
}

// RatesResponse is the merchant's current rate profile.
type RatesResponse struct {
	MerchantID     string `json:"merchant_id"`
	CommissionRate string `json:"commission_rate"`
	RewardRate     string `json:"reward_rate"`
	MaxRewardCap   int64  `json:"max_reward_cap"`
	UpdatedAt      string `json:"updated_at"`
}

// SettlementResponse is a recorded payout.
type SettlementResponse struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Reference    string `json:"reference"`
	BalanceAfter int64  `json:"balance_after"`
	CreatedAt    string `json:"created_at"`
}

// ReconciliationResponse reports the outcome of a reconciliation run.
type ReconciliationResponse struct {
	CheckedAt       string             `json:"checked_at"`
	AccountsChecked int                `json:"accounts_checked"`
	Clean           bool               `json:"clean"`
	Mismatches      []MismatchResponse `json:"mismatches"`
}

// MismatchResponse is one drifted account.
type MismatchResponse struct {
	AccountID string `json:"account_id"`
	Stored    int64  `json:"stored"`
	Expected  int64  `json:"expected"`
	Drift     int64  `json:"drift"`
}
