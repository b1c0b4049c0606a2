package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"
	"coin-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const settlementDateLayout = "2006-01-02"

// SettlementServiceImpl implements ports.SettlementService.
type SettlementServiceImpl struct {
	engine     *BalanceEngine
	txRepo     ports.TransactionRepository
	stlRepo    ports.SettlementRepository
	transactor ports.DBTransactor
	loc        *time.Location
	log        zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl. Days are cut in loc.
func NewSettlementService(
	engine *BalanceEngine,
	txRepo ports.TransactionRepository,
	stlRepo ports.SettlementRepository,
	transactor ports.DBTransactor,
	loc *time.Location,
	log zerolog.Logger,
) *SettlementServiceImpl {
	if loc == nil {
		loc = time.UTC
	}
	return &SettlementServiceImpl{
		engine:     engine,
		txRepo:     txRepo,
		stlRepo:    stlRepo,
		transactor: transactor,
		loc:        loc,
		log:        log,
	}
}

// Aggregate summarizes the merchant's successful receipts per day as of asOf.
func (s *SettlementServiceImpl) Aggregate(ctx context.Context, merchantID uuid.UUID, asOf time.Time) (*domain.SettlementReport, error) {
	txns, err := s.txRepo.ListByMerchantAndStatus(ctx, merchantID, domain.TransactionStatusSuccess)
	if err != nil {
		return nil, storageError("list merchant transactions", err)
	}
	return AggregateSettlement(merchantID, txns, asOf, s.loc), nil
}

// AggregateSettlement folds SUCCESS records received by the merchant into
// per-day rows. A day is SETTLED iff it is strictly before asOf's day in loc
// (T+1). Rows are ordered by date; the result depends only on its inputs.
func AggregateSettlement(merchantID uuid.UUID, txns []domain.Transaction, asOf time.Time, loc *time.Location) *domain.SettlementReport {
	cutoff := asOf.In(loc).Format(settlementDateLayout)

	byDate := make(map[string]*domain.SettlementSummary)
	for i := range txns {
		t := &txns[i]
		if t.Status != domain.TransactionStatusSuccess || t.ReceiverAccountID != merchantID {
			continue
		}
		date := t.CreatedAt.In(loc).Format(settlementDateLayout)
		row, ok := byDate[date]
		if !ok {
			row = &domain.SettlementSummary{Date: date}
			byDate[date] = row
		}
		row.Gross += t.AmountGross
		row.Commission += t.CommissionAmount
		row.Count++
	}

	report := &domain.SettlementReport{
		MerchantID: merchantID,
		AsOf:       cutoff,
		Rows:       make([]domain.SettlementSummary, 0, len(byDate)),
	}
	for _, row := range byDate {
		row.Net = row.Gross - row.Commission
		// ISO dates compare lexically.
		if row.Date < cutoff {
			row.Status = domain.SettlementStatusSettled
			report.TotalSettled += row.Net
		} else {
			row.Status = domain.SettlementStatusPending
			report.PendingPayout += row.Net
		}
		report.Rows = append(report.Rows, *row)
	}
	sort.Slice(report.Rows, func(i, j int) bool { return report.Rows[i].Date < report.Rows[j].Date })
	return report
}

// Settle draws amount down from the merchant balance and records the payout
// under reference. A reused reference fails with LED_006 and debits nothing.
func (s *SettlementServiceImpl) Settle(ctx context.Context, merchantID uuid.UUID, amount int64, reference string) (stl *domain.Settlement, err error) {
	defer observe("settle", time.Now(), &err)

	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if err := checkReference("reference", reference); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	balance, err := s.engine.Debit(ctx, dbTx, merchantID, amount)
	if err != nil {
		return nil, err
	}

	stl = &domain.Settlement{
		ID:           uuid.New(),
		MerchantID:   merchantID,
		Amount:       amount,
		Reference:    reference,
		BalanceAfter: balance,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.stlRepo.Create(ctx, dbTx, stl); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.ErrDuplicateSettlement()
		}
		return nil, storageError("record settlement", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}
	metrics.AddCoins("settled", amount)

	s.log.Info().
		Str("settlement_id", stl.ID.String()).
		Str("merchant_id", merchantID.String()).
		Str("reference", reference).
		Int64("amount", amount).
		Int64("balance_after", balance).
		Msg("merchant settled")

	return stl, nil
}

// ListSettlements returns the merchant's payout history, oldest first.
func (s *SettlementServiceImpl) ListSettlements(ctx context.Context, merchantID uuid.UUID) ([]domain.Settlement, error) {
	stls, err := s.stlRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, storageError("list settlements", err)
	}
	return stls, nil
}
