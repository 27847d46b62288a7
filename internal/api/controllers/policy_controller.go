package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	dbm "passpay/internal/models/db_models"
	"passpay/internal/models/request_models"
	"passpay/internal/services"
	"passpay/pkg/utils"
)

type PolicyController struct {
	policyService  services.PolicyService
	paymentService services.PaymentService
	log            *zap.Logger
}

func NewPolicyController(policyService services.PolicyService, paymentService services.PaymentService, log *zap.Logger) *PolicyController {
	return &PolicyController{
		policyService:  policyService,
		paymentService: paymentService,
		log:            log.Named("api.policies"),
	}
}

// GetPolicyPayments godoc
// @Summary List the payments made against a policy
// @Tags Policies
// @Produce json
// @Param code path string true "Policy code"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Router /v1/policies/{code}/payments [get]
func (pc *PolicyController) GetPolicyPayments(c *gin.Context) {
	res, err := pc.paymentService.History(c.Request.Context(), c.Param("code"))
	if err != nil {
		utils.HandleServiceError(c, pc.log, err)
		return
	}
	utils.RespondSuccess(c, res, "Fetched policy payments successfully")
}

// GetPolicy godoc
// @Summary Get a policy by code
// @Tags Policies
// @Produce json
// @Param code path string true "Policy code"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Router /v1/policies/{code} [get]
func (pc *PolicyController) GetPolicy(c *gin.Context) {
	res, err := pc.policyService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		utils.HandleServiceError(c, pc.log, err)
		return
	}
	utils.RespondSuccess(c, res, "Fetched policy successfully")
}

// GetSubscriptionPolicy godoc
// @Summary Get the policy issued for a subscription
// @Tags Policies
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Router /v1/subscriptions/{id}/policy [get]
func (pc *PolicyController) GetSubscriptionPolicy(c *gin.Context) {
	res, err := pc.policyService.GetBySubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, pc.log, err)
		return
	}
	utils.RespondSuccess(c, res, "Fetched policy successfully")
}

// UpdatePolicyStatus godoc
// @Summary Suspend, reinstate or cancel a policy
// @Tags Policies
// @Accept json
// @Produce json
// @Param code path string true "Policy code"
// @Param request body request_models.UpdatePolicyStatusRequest true "Status change"
// @Success 200 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Security BearerAuth
// @Router /v1/policies/{code}/status [patch]
func (pc *PolicyController) UpdatePolicyStatus(c *gin.Context) {
	var request request_models.UpdatePolicyStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := pc.policyService.UpdateStatus(c.Request.Context(), c.Param("code"), dbm.PolicyStatus(request.Status), request.Note)
	if err != nil {
		utils.HandleServiceError(c, pc.log, err)
		return
	}
	pc.log.Info("policy status changed",
		zap.String("code", res.Code),
		zap.String("status", res.Status),
		zap.String("by", c.GetString("subject")))
	utils.RespondSuccess(c, res, "Policy status updated")
}
