package handler

import (
	"time"

	"coin-ledger/internal/adapter/http/middleware"
	redisStore "coin-ledger/internal/adapter/storage/redis"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AccountSvc     ports.AccountService
	TransferSvc    ports.TransferService
	PaymentSvc     ports.PaymentService
	RateSvc        ports.MerchantRateService
	SettlementSvc  ports.SettlementService
	ReconSvc       ports.ReconciliationService
	AuditSvc       ports.AuditService // nil = audit logging disabled
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	Gateway        middleware.GatewayAuthConfig
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	SettlementLoc  *time.Location
	RequestTimeout time.Duration // 0 = no deadline
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep: storage + redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.Timeout(deps.RequestTimeout))

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	gatewayAuth := middleware.GatewayHMAC(deps.Gateway, deps.SigSvc, deps.NonceStore, deps.Logger)

	// --- Caller's own account (JWT) ---
	accountHandler := NewAccountHandler(deps.AccountSvc)
	accounts := v1.Group("/accounts", jwtAuth)
	{
		accounts.POST("", rl("accounts"), accountHandler.Open)
		accounts.GET("/me/balance", rl("reads"), accountHandler.GetBalance)
		accounts.GET("/me/transactions", rl("reads"), accountHandler.ListTransactions)
	}

	transferHandler := NewTransferHandler(deps.TransferSvc)
	v1.POST("/transfers", jwtAuth, rl("transfers"), transferHandler.Transfer)

	// --- Payments: payer side (JWT), gateway side (HMAC) ---
	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	payments := v1.Group("/payments")
	{
		payments.POST("/quote", jwtAuth, rl("reads"), paymentHandler.Quote)
		payments.POST("", jwtAuth, rl("payments"), paymentHandler.Initiate)
		payments.POST("/confirm", gatewayAuth, rl("gateway"), paymentHandler.Confirm)
		payments.POST("/fail", gatewayAuth, rl("gateway"), paymentHandler.Fail)
		payments.POST("/mint", gatewayAuth, rl("gateway"), paymentHandler.Mint)
	}

	// --- Merchant self-service (JWT) ---
	merchantHandler := NewMerchantHandler(deps.RateSvc, deps.SettlementSvc, deps.SettlementLoc)
	merchants := v1.Group("/merchants/me", jwtAuth)
	{
		merchants.GET("/rates", rl("reads"), merchantHandler.GetRates)
		merchants.PUT("/rates", rl("rates"), merchantHandler.UpdateRates)
		merchants.GET("/settlement", rl("reads"), merchantHandler.SettlementReport)
		merchants.POST("/settlements", rl("settlements"), merchantHandler.Settle)
		merchants.GET("/settlements", rl("reads"), merchantHandler.ListSettlements)
	}

	// --- Operators (JWT, admin role) ---
	adminHandler := NewAdminHandler(deps.ReconSvc)
	admin := v1.Group("/admin", jwtAuth, middleware.RequireAdmin())
	{
		admin.POST("/reconcile", rl("admin"), adminHandler.Reconcile)
	}

	return r
}
