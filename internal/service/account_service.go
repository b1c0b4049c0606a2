package service

import (
	"context"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// accountService implements ports.AccountService.
type accountService struct {
	engine     *BalanceEngine
	accounts   ports.AccountRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(
	engine *BalanceEngine,
	accounts ports.AccountRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) ports.AccountService {
	return &accountService{
		engine:     engine,
		accounts:   accounts,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
	}
}

// OpenAccount creates a zero-balance account. Opening an existing account
// returns it unchanged.
func (s *accountService) OpenAccount(ctx context.Context, accountID uuid.UUID, kind domain.AccountKind) (*domain.Account, error) {
	if accountID == uuid.Nil {
		return nil, apperror.Validation("account id is required")
	}
	if kind != domain.AccountKindCustomer && kind != domain.AccountKindMerchant {
		return nil, apperror.Validation("kind must be CUSTOMER or MERCHANT")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	created, err := s.accounts.Create(ctx, dbTx, &domain.Account{
		ID:        accountID,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, storageError("create account", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, storageError("get account", err)
	}
	if acc == nil {
		return nil, apperror.ErrNotFound("account")
	}
	if created {
		s.log.Info().
			Str("account_id", accountID.String()).
			Str("kind", string(kind)).
			Msg("account opened")
	}
	return acc, nil
}

// GetBalance returns 0 for accounts that have never been credited.
func (s *accountService) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.engine.GetBalance(ctx, accountID)
}

// ListTransactions returns a page of records the account sent or received.
func (s *accountService) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	txns, total, err := s.txRepo.ListByAccount(ctx, params)
	if err != nil {
		return nil, 0, storageError("list transactions", err)
	}
	return txns, total, nil
}
