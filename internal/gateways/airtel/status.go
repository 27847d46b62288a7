package airtel

import (
	"encoding/json"
	"strings"

	"passpay/internal/gateways"
)

// Airtel transaction codes (TS, TF, ...) plus the long forms some
// environments send instead.
var statusCodes = map[string]gateways.NormalizedStatus{
	"TS":         gateways.StatusSuccessful,
	"SUCCESS":    gateways.StatusSuccessful,
	"SUCCESSFUL": gateways.StatusSuccessful,
	"TF":         gateways.StatusFailed,
	"TE":         gateways.StatusFailed,
	"FAILED":     gateways.StatusFailed,
	"REJECTED":   gateways.StatusFailed,
	"CANCELLED":  gateways.StatusFailed,
	"TI":         gateways.StatusPending,
	"TIP":        gateways.StatusPending,
	"TA":         gateways.StatusPending,
	"PENDING":    gateways.StatusPending,
	"INITIATED":  gateways.StatusPending,
}

func normalize(code string) (gateways.NormalizedStatus, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return gateways.StatusUnknown, false
	}
	if s, ok := statusCodes[code]; ok {
		return s, false
	}
	return gateways.StatusPending, true
}

// failureReason keeps a failed debit explainable when Airtel omits the message.
func failureReason(message, code string) string {
	if message = strings.TrimSpace(message); message != "" {
		return message
	}
	return "payment failed (" + strings.ToUpper(strings.TrimSpace(code)) + ")"
}

func statusMessage(body []byte, fallback string) string {
	var e struct {
		Status struct {
			Message string `json:"message"`
		} `json:"status"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		for _, m := range []string{e.Status.Message, e.ErrorDescription, e.Message} {
			if m != "" {
				return m
			}
		}
	}
	return fallback
}
