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

// PaymentServiceImpl implements ports.PaymentService: the MINT lifecycle
// from quote to gateway confirmation.
type PaymentServiceImpl struct {
	calc       *Calculator
	engine     *BalanceEngine
	txRepo     ports.TransactionRepository
	rateRepo   ports.MerchantRateRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	calc *Calculator,
	engine *BalanceEngine,
	txRepo ports.TransactionRepository,
	rateRepo ports.MerchantRateRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		calc:       calc,
		engine:     engine,
		txRepo:     txRepo,
		rateRepo:   rateRepo,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		transactor: transactor,
		log:        log,
	}
}

// Quote prices a bill against the payer's current balance. Nothing is written.
func (s *PaymentServiceImpl) Quote(ctx context.Context, req ports.PaymentRequest) (*ports.Quote, error) {
	if req.GrossAmount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.PayerID == uuid.Nil || req.MerchantID == uuid.Nil {
		return nil, apperror.Validation("payer and merchant are required")
	}
	if req.PayerID == req.MerchantID {
		return nil, apperror.Validation("payer cannot pay itself")
	}

	rates, err := s.rateRepo.Get(ctx, req.MerchantID)
	if err != nil {
		return nil, storageError("get merchant rates", err)
	}
	if rates == nil {
		return nil, apperror.ErrNotFound("merchant rates")
	}

	balance, err := s.engine.GetBalance(ctx, req.PayerID)
	if err != nil {
		return nil, err
	}

	return s.calc.Calculate(CalculationInput{
		GrossAmount:         req.GrossAmount,
		RequestedRedemption: req.RequestedRedemption,
		PayerBalance:        balance,
		Rates:               *rates,
	})
}

// Initiate stores a CREATED mint carrying the quote under the merchant's
// order reference.
func (s *PaymentServiceImpl) Initiate(ctx context.Context, req ports.PaymentRequest) (txn *domain.Transaction, err error) {
	defer observe("payment_initiate", time.Now(), &err)

	if err := checkReference("reference_id", req.ReferenceID); err != nil {
		return nil, err
	}

	existing, err := s.txRepo.GetByReference(ctx, req.MerchantID, req.ReferenceID)
	if err != nil {
		return nil, storageError("find payment", err)
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateTransaction()
	}

	quote, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payer := req.PayerID
	txn = &domain.Transaction{
		ID:                uuid.New(),
		ReferenceID:       req.ReferenceID,
		TransactionType:   domain.TransactionTypeMint,
		SenderAccountID:   &payer,
		ReceiverAccountID: req.MerchantID,
		AmountGross:       quote.GrossAmount,
		AmountNet:         quote.AmountNet,
		CoinsRedeemed:     quote.CoinsToRedeem,
		CoinsEarned:       quote.CoinsEarned,
		FiatAmount:        quote.FiatAmount,
		CommissionRate:    quote.CommissionRate,
		CommissionAmount:  quote.CommissionAmount,
		Status:            domain.TransactionStatusCreated,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.ErrDuplicateTransaction()
		}
		return nil, storageError("create payment", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("merchant_id", req.MerchantID.String()).
		Str("payer_id", req.PayerID.String()).
		Str("reference_id", req.ReferenceID).
		Int64("gross", quote.GrossAmount).
		Int64("coins_to_redeem", quote.CoinsToRedeem).
		Msg("payment initiated")

	return txn, nil
}

// Confirm applies a gateway-confirmed payment: the payer's redeemed coins are
// debited, earned coins minted to the payer and the net amount credited to
// the merchant, all in one storage transaction. Confirming an already
// successful payment returns the stored record without minting again.
func (s *PaymentServiceImpl) Confirm(ctx context.Context, merchantID uuid.UUID, referenceID string) (txn *domain.Transaction, err error) {
	defer observe("payment_confirm", time.Now(), &err)

	idempKey := domain.BuildMintIdempotencyKey(merchantID, referenceID)

	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalTransaction(cached)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err = s.txRepo.GetByReferenceForUpdate(ctx, dbTx, merchantID, referenceID)
	if err != nil {
		return nil, storageError("lock payment", err)
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	switch txn.Status {
	case domain.TransactionStatusSuccess:
		return txn, nil
	case domain.TransactionStatusFailed:
		return nil, apperror.ErrInvalidStatusTransition(string(txn.Status), string(domain.TransactionStatusSuccess))
	}

	payer, ok := txn.PayerAccountID()
	if !ok {
		return nil, apperror.InternalError(fmt.Errorf("mint %s has no payer", txn.ID))
	}
	if _, err := s.engine.Lock(ctx, dbTx, payer, merchantID); err != nil {
		return nil, err
	}

	if txn.CoinsRedeemed > 0 {
		_, err := s.engine.DebitWithRetentionCap(ctx, dbTx, payer, txn.CoinsRedeemed, s.calc.Policy().RetentionFraction)
		if err != nil {
			code := apperror.CodeOf(err)
			if code == "LED_001" || code == "LED_003" {
				return nil, s.markFailed(ctx, dbTx, txn, err)
			}
			return nil, err
		}
	}
	if txn.CoinsEarned > 0 {
		if _, err := s.engine.Credit(ctx, dbTx, payer, txn.CoinsEarned); err != nil {
			return nil, err
		}
	}
	if txn.AmountNet > 0 {
		if _, err := s.engine.Credit(ctx, dbTx, merchantID, txn.AmountNet); err != nil {
			return nil, err
		}
	}

	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusSuccess); err != nil {
		return nil, storageError("update payment status", err)
	}
	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusSuccess
	txn.ProcessedAt = &now

	respJSON, err := json.Marshal(txn)
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
		return nil, storageError("save idempotency log", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		s.log.Error().Err(err).
			Str("tx_id", txn.ID.String()).
			Str("reference_id", referenceID).
			Msg("mint commit failed, outcome unresolved")
		appErr := apperror.ErrStorageUnavailable(fmt.Errorf("commit tx: %w", err))
		appErr.Outcome = apperror.OutcomeUnresolved
		return nil, appErr
	}

	if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
	}
	metrics.AddCoins("redeemed", txn.CoinsRedeemed)
	metrics.AddCoins("earned", txn.CoinsEarned)

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("merchant_id", merchantID.String()).
		Str("payer_id", payer.String()).
		Int64("coins_redeemed", txn.CoinsRedeemed).
		Int64("coins_earned", txn.CoinsEarned).
		Int64("amount_net", txn.AmountNet).
		Msg("payment confirmed, reward minted")

	return txn, nil
}

// markFailed records a confirmation the payer can no longer cover. The
// status change is committed and cause is returned to the caller.
func (s *PaymentServiceImpl) markFailed(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, cause error) error {
	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusFailed); err != nil {
		return storageError("mark payment failed", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return storageError("commit tx", err)
	}
	s.log.Warn().
		Err(cause).
		Str("tx_id", txn.ID.String()).
		Str("reference_id", txn.ReferenceID).
		Msg("payment failed at confirmation")
	return cause
}

// Fail moves a CREATED payment to FAILED.
func (s *PaymentServiceImpl) Fail(ctx context.Context, merchantID uuid.UUID, referenceID string) (txn *domain.Transaction, err error) {
	defer observe("payment_fail", time.Now(), &err)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err = s.txRepo.GetByReferenceForUpdate(ctx, dbTx, merchantID, referenceID)
	if err != nil {
		return nil, storageError("lock payment", err)
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if !txn.CanTransitionTo(domain.TransactionStatusFailed) {
		return nil, apperror.ErrInvalidStatusTransition(string(txn.Status), string(domain.TransactionStatusFailed))
	}

	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusFailed); err != nil {
		return nil, storageError("update payment status", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusFailed
	txn.ProcessedAt = &now

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("reference_id", referenceID).
		Msg("payment marked failed")

	return txn, nil
}

// MintReward initiates and confirms a payment in one call. Replaying a
// reference that was already minted returns the stored record.
func (s *PaymentServiceImpl) MintReward(ctx context.Context, req ports.PaymentRequest) (*domain.Transaction, error) {
	if err := checkReference("reference_id", req.ReferenceID); err != nil {
		return nil, err
	}

	existing, err := s.txRepo.GetByReference(ctx, req.MerchantID, req.ReferenceID)
	if err != nil {
		return nil, storageError("find payment", err)
	}
	if existing == nil {
		if _, err := s.Initiate(ctx, req); err != nil && apperror.CodeOf(err) != "PAY_003" {
			return nil, err
		}
	}

	return s.Confirm(ctx, req.MerchantID, req.ReferenceID)
}
