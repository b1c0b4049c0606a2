package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Outcome tells the caller what happened to the ledger before the error surfaced.
type Outcome string

const (
	// OutcomeNone means no mutation was made.
	OutcomeNone Outcome = "NONE"
	// OutcomeCompensated means a partial mutation was made and undone.
	OutcomeCompensated Outcome = "COMPENSATED"
	// OutcomeUnresolved means a partial mutation may have been persisted.
	OutcomeUnresolved Outcome = "UNRESOLVED"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string  `json:"error_code"`
	Message    string  `json:"message"`
	HTTPStatus int     `json:"-"`
	Outcome    Outcome `json:"outcome"`
	Retryable  bool    `json:"retryable"`
	Err        error   `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Outcome:    OutcomeNone,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Outcome:    OutcomeNone,
		Err:        err,
	}
}

// Is matches AppErrors by code, so errors.Is(err, ErrInsufficientBalance()) works.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the AppError code in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetryable reports whether the whole operation may be retried by the caller.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// OutcomeOf returns the ledger outcome carried by err. Errors that are not
// AppErrors are treated as unresolved.
func OutcomeOf(err error) Outcome {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Outcome
	}
	return OutcomeUnresolved
}

// ---- Security & Authentication (SEC) ----

func ErrMissingSignature() *AppError {
	return New("SEC_001", "Missing signature headers", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

// ---- Ledger (LED) ----

func ErrInsufficientBalance() *AppError {
	return New("LED_001", "Insufficient coin balance", http.StatusPaymentRequired)
}

func ErrInvalidTransfer(reason string) *AppError {
	return New("LED_002", "Invalid transfer: "+reason, http.StatusBadRequest)
}

func ErrRetentionLimitExceeded(maxTransferable int64) *AppError {
	return New("LED_003",
		fmt.Sprintf("Amount exceeds retention limit, at most %d may be moved", maxTransferable),
		http.StatusUnprocessableEntity)
}

// ErrReceiverNotFound is returned after the sender debit was rolled back.
func ErrReceiverNotFound() *AppError {
	e := New("LED_004", "Receiver account not found", http.StatusNotFound)
	e.Outcome = OutcomeCompensated
	return e
}

// ErrTransferFailed reports a failed credit leg. compensated tells whether
// the sender debit is known to be undone.
func ErrTransferFailed(err error, compensated bool) *AppError {
	e := Wrap("LED_005", "Transfer failed", http.StatusServiceUnavailable, err)
	e.Retryable = true
	e.Outcome = OutcomeUnresolved
	if compensated {
		e.Outcome = OutcomeCompensated
	}
	return e
}

func ErrDuplicateSettlement() *AppError {
	return New("LED_006", "Settlement reference already used", http.StatusConflict)
}

// ---- Payment Business Logic (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrDuplicateTransaction() *AppError {
	return New("PAY_003", "Duplicate transaction", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidRates() *AppError {
	return New("PAY_005", "Rates must be between 0 and 100", http.StatusBadRequest)
}

func ErrPayloadTooLarge() *AppError {
	return New("PAY_006", "Request body too large", http.StatusRequestEntityTooLarge)
}

func ErrInvalidStatusTransition(from, to string) *AppError {
	return New("PAY_008", fmt.Sprintf("Transaction cannot move from %s to %s", from, to), http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_004", "Caller is not allowed to perform this action", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// ErrStorageUnavailable is transient: preconditions are re-checked on retry.
func ErrStorageUnavailable(err error) *AppError {
	e := Wrap("SYS_002", "Storage unavailable", http.StatusServiceUnavailable, err)
	e.Retryable = true
	return e
}

// ErrTimeout is returned when a request exceeds its storage deadline.
func ErrTimeout() *AppError {
	e := New("SYS_003", "Request timed out", http.StatusGatewayTimeout)
	e.Retryable = true
	e.Outcome = OutcomeUnresolved
	return e
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New("PAY_002", message, http.StatusBadRequest)
}
