package handler

import (
	"time"

	"coin-ledger/internal/adapter/http/dto"
	"coin-ledger/internal/adapter/http/middleware"
	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"
	"coin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MerchantHandler handles merchant self-service endpoints. The merchant is
// the authenticated account.
type MerchantHandler struct {
	rateSvc       ports.MerchantRateService
	settlementSvc ports.SettlementService
	loc           *time.Location
	now           func() time.Time
}

// NewMerchantHandler creates a new merchant handler. as_of dates are read in loc.
func NewMerchantHandler(rateSvc ports.MerchantRateService, settlementSvc ports.SettlementService, loc *time.Location) *MerchantHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &MerchantHandler{rateSvc: rateSvc, settlementSvc: settlementSvc, loc: loc, now: time.Now}
}

// GetRates handles GET /api/v1/merchants/me/rates.
func (h *MerchantHandler) GetRates(c *gin.Context) {
	merchantID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	rates, err := h.rateSvc.GetRates(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toRatesResponse(rates))
}

// UpdateRates handles PUT /api/v1/merchants/me/rates.
func (h *MerchantHandler) UpdateRates(c *gin.Context) {
	merchantID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.UpdateRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	commission, err := decimal.NewFromString(req.CommissionRate)
	if err != nil {
		response.Error(c, apperror.ErrInvalidRates())
		return
	}
	reward, err := decimal.NewFromString(req.RewardRate)
	if err != nil {
		response.Error(c, apperror.ErrInvalidRates())
		return
	}

	rates, err := h.rateSvc.UpdateRates(c.Request.Context(), &domain.MerchantRate{
		MerchantID:     merchantID,
		CommissionRate: commission,
		RewardRate:     reward,
		MaxRewardCap:   req.MaxRewardCap,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, merchantID.String())
	response.OK(c, toRatesResponse(rates))
}

// SettlementReport handles GET /api/v1/merchants/me/settlement?as_of=YYYY-MM-DD.
// Without as_of the report is cut at the current day.
func (h *MerchantHandler) SettlementReport(c *gin.Context) {
	merchantID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	asOf := h.now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			response.Error(c, apperror.Validation("as_of must be YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}

	report, err := h.settlementSvc.Aggregate(c.Request.Context(), merchantID, asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// Settle handles POST /api/v1/merchants/me/settlements.
func (h *MerchantHandler) Settle(c *gin.Context) {
	merchantID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	stl, err := h.settlementSvc.Settle(c.Request.Context(), merchantID, req.Amount, req.Reference)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, stl.ID.String())
	response.Created(c, toSettlementResponse(stl))
}

// ListSettlements handles GET /api/v1/merchants/me/settlements.
func (h *MerchantHandler) ListSettlements(c *gin.Context) {
	merchantID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	stls, err := h.settlementSvc.ListSettlements(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.SettlementResponse, 0, len(stls))
	for i := range stls {
		items = append(items, toSettlementResponse(&stls[i]))
	}
	response.OK(c, items)
}
