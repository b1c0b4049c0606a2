package handler

import (
	"context"

	"coin-ledger/internal/adapter/http/dto"
	"coin-ledger/internal/adapter/http/middleware"
	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"
	"coin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles the payment (mint) lifecycle.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// Quote handles POST /api/v1/payments/quote. Nothing is written.
func (h *PaymentHandler) Quote(c *gin.Context) {
	payerID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	merchantID, err := parseID("merchant_id", req.MerchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	quote, err := h.paymentSvc.Quote(c.Request.Context(), ports.PaymentRequest{
		PayerID:             payerID,
		MerchantID:          merchantID,
		GrossAmount:         req.GrossAmount,
		RequestedRedemption: req.CoinsToRedeem,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toQuoteResponse(quote))
}

// Initiate handles POST /api/v1/payments. The caller is the payer.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	payerID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)
	merchantID, err := parseID("merchant_id", req.MerchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err := h.paymentSvc.Initiate(c.Request.Context(), ports.PaymentRequest{
		PayerID:             payerID,
		MerchantID:          merchantID,
		GrossAmount:         req.GrossAmount,
		RequestedRedemption: req.CoinsToRedeem,
		ReferenceID:         req.ReferenceID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, txn.ID.String())
	response.Created(c, toTransactionResponse(txn))
}

// Confirm handles POST /api/v1/payments/confirm (signed by the gateway).
func (h *PaymentHandler) Confirm(c *gin.Context) {
	h.gatewayEvent(c, h.paymentSvc.Confirm)
}

// Fail handles POST /api/v1/payments/fail (signed by the gateway).
func (h *PaymentHandler) Fail(c *gin.Context) {
	h.gatewayEvent(c, h.paymentSvc.Fail)
}

type gatewayAction func(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error)

func (h *PaymentHandler) gatewayEvent(c *gin.Context, action gatewayAction) {
	var req dto.GatewayEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	merchantID, err := parseID("merchant_id", req.MerchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err := action(c.Request.Context(), merchantID, req.ReferenceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, txn.ID.String())
	response.OK(c, toTransactionResponse(txn))
}

// Mint handles POST /api/v1/payments/mint: a signed one-shot payment.
// Replaying the same reference returns the original record.
func (h *PaymentHandler) Mint(c *gin.Context) {
	var req dto.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	payerID, err := parseID("payer_id", req.PayerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	merchantID, err := parseID("merchant_id", req.MerchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err := h.paymentSvc.MintReward(c.Request.Context(), ports.PaymentRequest{
		PayerID:             payerID,
		MerchantID:          merchantID,
		GrossAmount:         req.GrossAmount,
		RequestedRedemption: req.CoinsToRedeem,
		ReferenceID:         req.ReferenceID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, txn.ID.String())
	response.OK(c, toTransactionResponse(txn))
}
