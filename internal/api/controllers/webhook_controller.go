package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passpay/internal/gateways"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/models/response_models"
	"passpay/internal/services"
	"passpay/pkg/utils"
)

const (
	CallbackSecretHeader = "X-Callback-Secret"
	maxCallbackBody      = 1 << 20
)

type WebhookController struct {
	reconciler services.ReconciliationService
	registry   *gateways.Registry
	log        *zap.Logger
}

func NewWebhookController(reconciler services.ReconciliationService, registry *gateways.Registry, log *zap.Logger) *WebhookController {
	return &WebhookController{reconciler: reconciler, registry: registry, log: log.Named("api.webhooks")}
}

// MTNCallback godoc
// @Summary Receive an MTN MoMo collection callback
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 401 {object} utils.APIResponse
// @Router /v1/webhooks/mtn [post]
func (w *WebhookController) MTNCallback(c *gin.Context) {
	w.handle(c, dbm.OperatorMTN)
}

// AirtelCallback godoc
// @Summary Receive an Airtel Money collection callback
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 401 {object} utils.APIResponse
// @Router /v1/webhooks/airtel [post]
func (w *WebhookController) AirtelCallback(c *gin.Context) {
	w.handle(c, dbm.OperatorAirtel)
}

func (w *WebhookController) handle(c *gin.Context, operator dbm.Operator) {
	provider, err := w.registry.Get(operator)
	if err != nil {
		utils.HandleServiceError(c, w.log, err)
		return
	}
	if provider.CallbackSecretHash != "" {
		secret := c.GetHeader(CallbackSecretHeader)
		if secret == "" || utils.CompareSecret(provider.CallbackSecretHash, secret) != nil {
			utils.HandleServiceError(c, w.log, utils.ErrInvalidCallbackSecret)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Unreadable callback body")
		return
	}

	out, err := w.reconciler.ApplyCallback(c.Request.Context(), operator, body)
	if err != nil {
		utils.HandleServiceError(c, w.log, err)
		return
	}

	ack := response_models.WebhookAckResponse{Result: "applied"}
	switch {
	case out.Ignored:
		ack.Result = "ignored"
	case out.Decision.Duplicate:
		ack.Result = "duplicate"
	}
	if out.Transaction != nil {
		ack.Status = string(out.Transaction.Status)
	}
	utils.RespondSuccess(c, ack, "Callback received")
}
