package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BalanceEngine applies single-account balance changes inside the caller's
// storage transaction. Debits are conditional updates in the store, never a
// read followed by a write.
type BalanceEngine struct {
	accounts ports.AccountRepository
	log      zerolog.Logger
}

// NewBalanceEngine creates a new BalanceEngine.
func NewBalanceEngine(accounts ports.AccountRepository, log zerolog.Logger) *BalanceEngine {
	return &BalanceEngine{accounts: accounts, log: log}
}

// GetBalance returns the current balance, or 0 for an unknown account.
func (e *BalanceEngine) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	acc, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, storageError("get balance", err)
	}
	if acc == nil {
		return 0, nil
	}
	return acc.Balance, nil
}

// Lock takes row locks on the accounts in ascending id order so two
// operations touching the same pair can never deadlock. Accounts that do
// not exist map to nil.
func (e *BalanceEngine) Lock(ctx context.Context, tx pgx.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	ordered = slices.Compact(ordered)

	locked := make(map[uuid.UUID]*domain.Account, len(ordered))
	for _, id := range ordered {
		acc, err := e.accounts.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, storageError("lock account", err)
		}
		locked[id] = acc
	}
	return locked, nil
}

// Credit adds amount, creating the account on first credit.
func (e *BalanceEngine) Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperror.ErrInvalidAmount()
	}
	balance, err := e.accounts.Credit(ctx, tx, accountID, amount)
	if err != nil {
		return 0, storageError("credit", err)
	}
	e.log.Info().
		Str("account_id", accountID.String()).
		Int64("amount", amount).
		Int64("balance", balance).
		Msg("account credited")
	return balance, nil
}

// Debit subtracts amount, failing with LED_001 if the balance is short.
func (e *BalanceEngine) Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperror.ErrInvalidAmount()
	}
	balance, applied, err := e.accounts.DebitIfSufficient(ctx, tx, accountID, amount)
	if err != nil {
		return 0, storageError("debit", err)
	}
	if !applied {
		return 0, apperror.ErrInsufficientBalance()
	}
	e.log.Info().
		Str("account_id", accountID.String()).
		Int64("amount", amount).
		Int64("balance", balance).
		Msg("account debited")
	return balance, nil
}

// DebitWithRetentionCap debits only if amount stays within
// floor(balance * capFraction). The row stays locked until tx ends.
func (e *BalanceEngine) DebitWithRetentionCap(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, capFraction decimal.Decimal) (int64, error) {
	if amount <= 0 {
		return 0, apperror.ErrInvalidAmount()
	}
	acc, err := e.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return 0, storageError("lock account", err)
	}
	var balance int64
	if acc != nil {
		balance = acc.Balance
	}
	if limit := RetentionCap(balance, capFraction); amount > limit {
		return 0, apperror.ErrRetentionLimitExceeded(limit)
	}
	return e.Debit(ctx, tx, accountID, amount)
}

// storageError maps a repository failure to SYS_002. Errors that are
// already typed pass through.
// checkReference rejects references the ledger tables cannot store.
func checkReference(field, ref string) error {
	switch {
	case ref == "":
		return apperror.Validation(field + " is required")
	case len(ref) > domain.MaxReferenceLength:
		return apperror.Validation(fmt.Sprintf("%s exceeds %d characters", field, domain.MaxReferenceLength))
	}
	return nil
}

func storageError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.ErrStorageUnavailable(fmt.Errorf("%s: %w", op, err))
}
