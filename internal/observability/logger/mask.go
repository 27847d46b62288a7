package logger

import "strings"

// MaskAuthorization masks bearer and basic credentials, preserving the scheme.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parts := strings.Fields(value)
	if len(parts) == 2 && (strings.EqualFold(parts[0], "Bearer") || strings.EqualFold(parts[0], "Basic")) {
		return parts[0] + " " + maskLast4(parts[1])
	}
	return maskLast4(value)
}

// MaskSecret keeps only the last four characters of an api key or token.
func MaskSecret(value string) string {
	return maskLast4(strings.TrimSpace(value))
}

// MaskMSISDN hides the middle of a phone number.
func MaskMSISDN(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 6 {
		return maskLast4(value)
	}
	return value[:4] + strings.Repeat("*", len(value)-6) + value[len(value)-2:]
}

func maskLast4(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
