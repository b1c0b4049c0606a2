package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"
	"coin-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// TransferServiceImpl implements ports.TransferService.
//
// The debit and credit legs share one storage transaction. Rolling that
// transaction back is the compensation: it restores the sender to its
// pre-transfer balance, so callers can tell "nothing happened" apart from
// "partial mutation, compensated" and "outcome unknown".
type TransferServiceImpl struct {
	engine     *BalanceEngine
	policy     domain.RewardPolicy
	txRepo     ports.TransactionRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	engine *BalanceEngine,
	policy domain.RewardPolicy,
	txRepo ports.TransactionRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		engine:     engine,
		policy:     policy,
		txRepo:     txRepo,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		transactor: transactor,
		log:        log,
	}
}

// Transfer moves amount from sender to receiver exactly once.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (txn *domain.Transaction, err error) {
	defer observe("transfer", time.Now(), &err)

	switch {
	case req.Amount <= 0:
		return nil, apperror.ErrInvalidTransfer("amount must be positive")
	case req.SenderID == uuid.Nil || req.ReceiverID == uuid.Nil:
		return nil, apperror.ErrInvalidTransfer("sender and receiver are required")
	case req.SenderID == req.ReceiverID:
		return nil, apperror.ErrInvalidTransfer("cannot transfer to self")
	case len(req.IdempotencyKey) > domain.MaxReferenceLength:
		return nil, apperror.ErrInvalidTransfer(fmt.Sprintf("idempotency key exceeds %d characters", domain.MaxReferenceLength))
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildTransferIdempotencyKey(req.SenderID, req.IdempotencyKey)
		if replay, err := s.replay(ctx, idempKey); replay != nil || err != nil {
			return replay, err
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := s.engine.Lock(ctx, dbTx, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	if _, err := s.engine.DebitWithRetentionCap(ctx, dbTx, req.SenderID, req.Amount, s.policy.RetentionFraction); err != nil {
		return nil, err
	}

	// From here on the sender has been debited inside dbTx.
	if locked[req.ReceiverID] == nil {
		if rbErr := s.compensate(ctx, dbTx, req, "receiver not found"); rbErr != nil {
			return nil, apperror.ErrTransferFailed(rbErr, false)
		}
		return nil, apperror.ErrReceiverNotFound()
	}

	if _, err := s.engine.Credit(ctx, dbTx, req.ReceiverID, req.Amount); err != nil {
		return nil, s.failCompensated(ctx, dbTx, req, fmt.Errorf("credit receiver: %w", err))
	}

	now := time.Now().UTC()
	sender := req.SenderID
	txn = &domain.Transaction{
		ID:                uuid.New(),
		ReferenceID:       req.IdempotencyKey,
		TransactionType:   domain.TransactionTypeTransfer,
		SenderAccountID:   &sender,
		ReceiverAccountID: req.ReceiverID,
		AmountGross:       req.Amount,
		AmountNet:         req.Amount,
		Status:            domain.TransactionStatusSuccess,
		CreatedAt:         now,
		ProcessedAt:       &now,
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, s.failCompensated(ctx, dbTx, req, fmt.Errorf("record transfer: %w", err))
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(txn)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		entry := &domain.IdempotencyLog{
			Key:           idempKey,
			TransactionID: txn.ID,
			ResponseJSON:  respJSON,
			CreatedAt:     now,
		}
		if err := s.idempRepo.Create(ctx, dbTx, entry); err != nil {
			if errors.Is(err, ports.ErrDuplicateKey) {
				return nil, apperror.ErrDuplicateTransaction()
			}
			return nil, s.failCompensated(ctx, dbTx, req, fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		s.log.Error().Err(err).
			Str("tx_id", txn.ID.String()).
			Str("sender_id", req.SenderID.String()).
			Str("receiver_id", req.ReceiverID.String()).
			Int64("amount", req.Amount).
			Msg("transfer commit failed, outcome unresolved")
		return nil, apperror.ErrTransferFailed(fmt.Errorf("commit tx: %w", err), false)
	}

	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}
	metrics.AddCoins("transferred", req.Amount)

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("sender_id", req.SenderID.String()).
		Str("receiver_id", req.ReceiverID.String()).
		Int64("amount", req.Amount).
		Msg("transfer completed")

	return txn, nil
}

// replay returns the stored result of an earlier transfer with the same key.
func (s *TransferServiceImpl) replay(ctx context.Context, key string) (*domain.Transaction, error) {
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalTransaction(cached)
	}

	entry, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, storageError("db idempotency check", err)
	}
	if entry != nil {
		return unmarshalTransaction(entry.ResponseJSON)
	}
	return nil, nil
}

// compensate rolls back the debit already applied inside dbTx.
func (s *TransferServiceImpl) compensate(ctx context.Context, dbTx pgx.Tx, req ports.TransferRequest, reason string) error {
	if err := dbTx.Rollback(ctx); err != nil {
		s.log.Error().Err(err).
			Str("sender_id", req.SenderID.String()).
			Int64("amount", req.Amount).
			Str("reason", reason).
			Msg("compensation failed, sender debit unresolved")
		return err
	}
	s.log.Warn().
		Str("sender_id", req.SenderID.String()).
		Str("receiver_id", req.ReceiverID.String()).
		Int64("amount", req.Amount).
		Str("reason", reason).
		Msg("transfer compensated, sender debit rolled back")
	return nil
}

func (s *TransferServiceImpl) failCompensated(ctx context.Context, dbTx pgx.Tx, req ports.TransferRequest, cause error) error {
	rbErr := s.compensate(ctx, dbTx, req, cause.Error())
	if rbErr != nil {
		return apperror.ErrTransferFailed(errors.Join(cause, rbErr), false)
	}
	return apperror.ErrTransferFailed(cause, true)
}

func unmarshalTransaction(data []byte) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached transaction: %w", err))
	}
	return &txn, nil
}
