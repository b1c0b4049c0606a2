package handler

import (
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operator actions.
type AdminHandler struct {
	reconSvc ports.ReconciliationService
}

func NewAdminHandler(reconSvc ports.ReconciliationService) *AdminHandler {
	return &AdminHandler{reconSvc: reconSvc}
}

// Reconcile handles POST /api/v1/admin/reconcile. Drift is reported with 200;
// the caller decides what to do about it.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	report, err := h.reconSvc.Reconcile(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toReconciliationResponse(report))
}
