package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passpay/internal/models/request_models"
	"passpay/internal/services"
	"passpay/pkg/utils"
)

type PaymentController struct {
	paymentService services.PaymentService
	log            *zap.Logger
}

func NewPaymentController(paymentService services.PaymentService, log *zap.Logger) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		log:            log.Named("api.payments"),
	}
}

// InitiatePayment godoc
// @Summary Start a mobile money debit
// @Description Debits the payer's wallet for a subscription or policy. The result is pending until the operator confirms.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body request_models.InitiatePaymentRequest true "Initiate Payment Request"
// @Success 201 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Failure 502 {object} utils.APIResponse
// @Router /v1/payments [post]
func (p *PaymentController) InitiatePayment(c *gin.Context) {
	var request request_models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if request.PolicyCode == "" && request.SubscriptionID == "" {
		utils.RespondError(c, http.StatusBadRequest, "policy_code or subscription_id is required")
		return
	}

	res, err := p.paymentService.Initiate(c.Request.Context(), services.InitiatePaymentInput{
		PolicyCode:     request.PolicyCode,
		SubscriptionID: request.SubscriptionID,
		Amount:         request.Amount,
		PayerNumber:    request.PayerNumber,
		Operator:       request.Operator,
		Purpose:        request.Purpose,
	})
	if err != nil {
		utils.HandleServiceError(c, p.log, err)
		return
	}

	utils.RespondWithStatus(c, http.StatusCreated, res, "Payment initiated")
}

// GetPaymentStatus godoc
// @Summary Get the recorded status of a payment
// @Tags Payments
// @Produce json
// @Param transactionNumber path string true "Transaction number"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Router /v1/payments/{transactionNumber} [get]
func (p *PaymentController) GetPaymentStatus(c *gin.Context) {
	res, err := p.paymentService.GetStatus(c.Request.Context(), c.Param("transactionNumber"))
	if err != nil {
		utils.HandleServiceError(c, p.log, err)
		return
	}
	utils.RespondSuccess(c, res, "Fetched payment successfully")
}
