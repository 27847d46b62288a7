package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"passpay/internal/gateways"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	RespondWithStatus(c, http.StatusOK, data, message)
}

func RespondWithStatus(c *gin.Context, code int, data interface{}, message string) {
	c.JSON(code, APIResponse{
		Status:  "success",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
	})
}

// HandleServiceError maps domain errors onto HTTP responses.
func HandleServiceError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, gateways.ErrUnsupportedOperator),
		errors.Is(err, gateways.ErrOperatorNotDetected),
		errors.Is(err, gateways.ErrInvalidPhoneNumber),
		errors.Is(err, gateways.ErrMalformedCallback),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountOutOfRange):
		RespondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSubscriptionNotFound),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrPolicyNotFound):
		RespondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPaymentInProgress),
		errors.Is(err, ErrSubscriptionNotPayable),
		errors.Is(err, ErrInvalidPolicyTransition),
		errors.Is(err, ErrNotFlagged):
		RespondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCallbackSecret):
		RespondError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrPaymentInitiationFailed):
		// The operator's reason is part of the message so the payer knows what to fix.
		RespondError(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrDatabaseError):
		log.Error("database error", zap.Error(err), zap.String("trace_id", traceID(c)))
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	default:
		if f, ok := gateways.AsFailure(err); ok {
			log.Warn("gateway failure", zap.Error(f), zap.String("trace_id", traceID(c)))
			RespondError(c, http.StatusBadGateway, "Operator unavailable, please retry")
			return
		}
		log.Error("unhandled error", zap.Error(err), zap.String("trace_id", traceID(c)))
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
