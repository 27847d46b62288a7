package mtn

import (
	"encoding/json"
	"strings"

	"passpay/internal/gateways"
)

var statusCodes = map[string]gateways.NormalizedStatus{
	"SUCCESSFUL": gateways.StatusSuccessful,
	"FAILED":     gateways.StatusFailed,
	"REJECTED":   gateways.StatusFailed,
	"TIMEOUT":    gateways.StatusFailed,
	"CANCELLED":  gateways.StatusFailed,
	"EXPIRED":    gateways.StatusFailed,
	"PENDING":    gateways.StatusPending,
	"CREATED":    gateways.StatusPending,
	"ONGOING":    gateways.StatusPending,
}

// normalize maps an MTN status; unseen codes are reported as pending.
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

// reasonText accepts both the plain string and the {code,message} object forms.
func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.Message != "" && obj.Code != "":
			return obj.Code + ": " + obj.Message
		case obj.Message != "":
			return obj.Message
		default:
			return obj.Code
		}
	}
	return string(raw)
}

func errorMessage(body []byte, fallback string) string {
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && (e.Message != "" || e.Code != "") {
		if e.Message == "" {
			return e.Code
		}
		return e.Message
	}
	return fallback
}
