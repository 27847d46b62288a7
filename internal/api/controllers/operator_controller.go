package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passpay/internal/models/request_models"
	"passpay/internal/services"
	"passpay/pkg/utils"
)

type OperatorController struct {
	operatorService services.OperatorService
	log             *zap.Logger
}

func NewOperatorController(operatorService services.OperatorService, log *zap.Logger) *OperatorController {
	return &OperatorController{operatorService: operatorService, log: log.Named("api.operators")}
}

// ListOperators godoc
// @Summary List supported mobile money operators
// @Tags Operators
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /v1/operators [get]
func (oc *OperatorController) ListOperators(c *gin.Context) {
	utils.RespondSuccess(c, oc.operatorService.List(), "Fetched operators successfully")
}

// DetectOperator godoc
// @Summary Detect the operator serving a phone number
// @Tags Operators
// @Accept json
// @Produce json
// @Param request body request_models.DetectOperatorRequest true "Phone number"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /v1/operators/detect [post]
func (oc *OperatorController) DetectOperator(c *gin.Context) {
	var request request_models.DetectOperatorRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := oc.operatorService.Detect(request.PhoneNumber)
	if err != nil {
		utils.HandleServiceError(c, oc.log, err)
		return
	}
	utils.RespondSuccess(c, res, "Operator detected")
}

// GetBalance godoc
// @Summary Query the collection account balance at an operator
// @Tags Operators
// @Produce json
// @Param operator path string true "Operator code"
// @Success 200 {object} utils.APIResponse
// @Failure 502 {object} utils.APIResponse
// @Security BearerAuth
// @Router /v1/operators/{operator}/balance [get]
func (oc *OperatorController) GetBalance(c *gin.Context) {
	res, err := oc.operatorService.Balance(c.Request.Context(), c.Param("operator"))
	if err != nil {
		utils.HandleServiceError(c, oc.log, err)
		return
	}
	utils.RespondSuccess(c, res, "Fetched balance successfully")
}
