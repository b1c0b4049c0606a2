package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	method string
	path   string
}

type auditTarget struct {
	action   domain.AuditAction
	resource string
}

// auditedRoutes maps route templates of successful ledger writes to audit actions.
var auditedRoutes = map[auditRoute]auditTarget{
	{http.MethodPost, "/api/v1/accounts"}:                 {domain.AuditActionOpenAccount, "account"},
	{http.MethodPost, "/api/v1/transfers"}:                {domain.AuditActionTransfer, "transaction"},
	{http.MethodPost, "/api/v1/payments"}:                 {domain.AuditActionPaymentInitiate, "transaction"},
	{http.MethodPost, "/api/v1/payments/confirm"}:         {domain.AuditActionPaymentConfirm, "transaction"},
	{http.MethodPost, "/api/v1/payments/fail"}:            {domain.AuditActionPaymentFail, "transaction"},
	{http.MethodPost, "/api/v1/payments/mint"}:            {domain.AuditActionMint, "transaction"},
	{http.MethodPut, "/api/v1/merchants/me/rates"}:        {domain.AuditActionUpdateRates, "merchant_rate"},
	{http.MethodPost, "/api/v1/merchants/me/settlements"}: {domain.AuditActionSettle, "settlement"},
	{http.MethodPost, "/api/v1/admin/reconcile"}:          {domain.AuditActionReconcile, "ledger"},
}

// AuditLog records successful write operations after the handler responds.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful writes (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var accountID *uuid.UUID
		if id, ok := AccountID(c); ok {
			accountID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(CtxRequestID),
			"gateway":    c.GetBool(CtxGateway),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			AccountID:    accountID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxResourceID),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapPathToAction(path, method string) (domain.AuditAction, string) {
	t, ok := auditedRoutes[auditRoute{method: method, path: path}]
	if !ok {
		return "", ""
	}
	return t.action, t.resource
}
