package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"passpay/internal/api/controllers"
	"passpay/pkg/middleware"
)

type RouterParams struct {
	fx.In

	Log            *zap.Logger
	Payments       *controllers.PaymentController
	Webhooks       *controllers.WebhookController
	Policies       *controllers.PolicyController
	Operators      *controllers.OperatorController
	Reconciliation *controllers.ReconciliationController
}

func NewRouter(p RouterParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.RequestLogger(p.Log))

	RegisterRoutes(r, p)
	return r
}

func RegisterRoutes(r *gin.Engine, p RouterParams) {
	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	admin := []gin.HandlerFunc{middleware.JWTAuthMiddleware(), middleware.RoleMiddleware(middleware.RoleAdmin)}

	payments := v1.Group("/payments")
	payments.POST("", p.Payments.InitiatePayment)
	payments.GET("/:transactionNumber", p.Payments.GetPaymentStatus)

	webhooks := v1.Group("/webhooks")
	webhooks.POST("/mtn", p.Webhooks.MTNCallback)
	webhooks.POST("/airtel", p.Webhooks.AirtelCallback)

	policies := v1.Group("/policies")
	policies.GET("/:code", p.Policies.GetPolicy)
	policies.GET("/:code/payments", p.Policies.GetPolicyPayments)
	policies.PATCH("/:code/status", append(admin, p.Policies.UpdatePolicyStatus)...)
	v1.GET("/subscriptions/:id/policy", p.Policies.GetSubscriptionPolicy)

	operators := v1.Group("/operators")
	operators.GET("", p.Operators.ListOperators)
	operators.POST("/detect", p.Operators.DetectOperator)
	operators.GET("/:operator/balance", append(admin, p.Operators.GetBalance)...)

	reconcile := v1.Group("/reconciliation", admin...)
	reconcile.POST("/sweep", p.Reconciliation.RunSweep)
	reconcile.GET("/flagged", p.Reconciliation.ListFlagged)
	reconcile.POST("/:transactionNumber/retry", p.Reconciliation.RetryActivation)
}
