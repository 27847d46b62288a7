package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passpay/internal/models/response_models"
	"passpay/internal/services"
	"passpay/pkg/utils"
)

type ReconciliationController struct {
	reconciler services.ReconciliationService
	activation services.ActivationService
	log        *zap.Logger
}

func NewReconciliationController(reconciler services.ReconciliationService, activation services.ActivationService, log *zap.Logger) *ReconciliationController {
	return &ReconciliationController{reconciler: reconciler, activation: activation, log: log.Named("api.reconciliation")}
}

// RunSweep godoc
// @Summary Run one reconciliation sweep now
// @Tags Reconciliation
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /v1/reconciliation/sweep [post]
func (rc *ReconciliationController) RunSweep(c *gin.Context) {
	report, err := rc.reconciler.Sweep(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, rc.log, err)
		return
	}
	utils.RespondSuccess(c, ToSweepResponse(report), "Sweep completed")
}

// ListFlagged godoc
// @Summary List payments waiting for manual reconciliation
// @Tags Reconciliation
// @Produce json
// @Param limit query int false "Maximum rows" default(50)
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /v1/reconciliation/flagged [get]
func (rc *ReconciliationController) ListFlagged(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		utils.RespondError(c, http.StatusBadRequest, "Invalid limit (must be 1-500)")
		return
	}
	rows, err := rc.activation.ListFlagged(c.Request.Context(), limit)
	if err != nil {
		utils.HandleServiceError(c, rc.log, err)
		return
	}
	out := make([]response_models.FlaggedPaymentResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, response_models.FlaggedPaymentResponse{
			TransactionNumber: p.TransactionNumber,
			Operator:          string(p.Operator),
			Amount:            p.GrossAmount.StringFixed(2),
			Note:              p.ReconciliationNote,
			UpdatedAt:         utils.FormatRFC3339(utils.FromUnixSeconds(p.UpdatedAt)),
		})
	}
	utils.RespondSuccess(c, out, "Fetched flagged payments successfully")
}

// RetryActivation godoc
// @Summary Retry policy activation for a flagged payment
// @Tags Reconciliation
// @Produce json
// @Param transactionNumber path string true "Transaction number"
// @Success 200 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Security BearerAuth
// @Router /v1/reconciliation/{transactionNumber}/retry [post]
func (rc *ReconciliationController) RetryActivation(c *gin.Context) {
	res, err := rc.activation.Retry(c.Request.Context(), c.Param("transactionNumber"))
	if err != nil {
		utils.HandleServiceError(c, rc.log, err)
		return
	}
	data := gin.H{"activated": res.Activated, "flagged": res.Flagged}
	if res.Policy != nil {
		data["policy_code"] = res.Policy.Code
	}
	utils.RespondSuccess(c, data, "Activation retried")
}

func ToSweepResponse(r *services.SweepReport) response_models.SweepResponse {
	return response_models.SweepResponse{
		Scanned:   r.Scanned,
		Polled:    r.Polled,
		Settled:   r.Settled,
		Fallbacks: r.Fallbacks,
		Skipped:   r.Skipped,
		Errors:    r.Errors,
		Duration:  r.Duration.String(),
	}
}
