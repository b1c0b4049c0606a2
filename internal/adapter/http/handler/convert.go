package handler

import (
	"math"
	"strconv"
	"time"

	"coin-ledger/internal/adapter/http/dto"
	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"

	"github.com/google/uuid"
)

const timeLayout = time.RFC3339

// toTransactionResponse converts domain.Transaction to DTO.
func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:                tx.ID.String(),
		ReferenceID:       tx.ReferenceID,
		TransactionType:   string(tx.TransactionType),
		ReceiverAccountID: tx.ReceiverAccountID.String(),
		AmountGross:       tx.AmountGross,
		AmountNet:         tx.AmountNet,
		FiatAmount:        tx.FiatAmount,
		CoinsRedeemed:     tx.CoinsRedeemed,
		CoinsEarned:       tx.CoinsEarned,
		CommissionRate:    tx.CommissionRate.String(),
		CommissionAmount:  tx.CommissionAmount,
		Status:            string(tx.Status),
		CreatedAt:         tx.CreatedAt.Format(timeLayout),
	}
	if tx.SenderAccountID != nil {
		s := tx.SenderAccountID.String()
		resp.SenderAccountID = &s
	}
	if tx.ProcessedAt != nil {
		s := tx.ProcessedAt.Format(timeLayout)
		resp.ProcessedAt = &s
	}
	return resp
}

func toQuoteResponse(q *ports.Quote) dto.QuoteResponse {
	return dto.QuoteResponse{
		GrossAmount:      q.GrossAmount,
		FiatAmount:       q.FiatAmount,
		CoinsToRedeem:    q.CoinsToRedeem,
		CommissionRate:   q.CommissionRate.String(),
		CommissionAmount: q.CommissionAmount,
		CoinsEarned:      q.CoinsEarned,
		AmountNet:        q.AmountNet,
	}
}

func toRatesResponse(r *domain.MerchantRate) dto.RatesResponse {
	return dto.RatesResponse{
		MerchantID:     r.MerchantID.String(),
		CommissionRate: r.CommissionRate.String(),
		RewardRate:     r.RewardRate.String(),
		MaxRewardCap:   r.MaxRewardCap,
		UpdatedAt:      r.UpdatedAt.Format(timeLayout),
	}
}

func toSettlementResponse(s *domain.Settlement) dto.SettlementResponse {
	return dto.SettlementResponse{
		ID:           s.ID.String(),
		Amount:       s.Amount,
		Reference:    s.Reference,
		BalanceAfter: s.BalanceAfter,
		CreatedAt:    s.CreatedAt.Format(timeLayout),
	}
}

func toReconciliationResponse(r *domain.ReconciliationReport) dto.ReconciliationResponse {
	resp := dto.ReconciliationResponse{
		CheckedAt:       r.CheckedAt.Format(timeLayout),
		AccountsChecked: r.AccountsChecked,
		Clean:           r.Clean(),
		Mismatches:      make([]dto.MismatchResponse, 0, len(r.Mismatches)),
	}
	for _, m := range r.Mismatches {
		resp.Mismatches = append(resp.Mismatches, dto.MismatchResponse{
			AccountID: m.AccountID.String(),
			Stored:    m.Stored,
			Expected:  m.Expected,
			Drift:     m.Drift(),
		})
	}
	return resp
}

func toTransactionList(txns []domain.Transaction, total int64, page, pageSize int) dto.TransactionListResponse {
	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, toTransactionResponse(&txns[i]))
	}
	return dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}
}

// parseID parses a UUID that binding already validated.
func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation(field + " must be a UUID")
	}
	return id, nil
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
