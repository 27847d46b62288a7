package gateways

import (
	"errors"
	"regexp"
	"strings"
)

const CountryCallingCode = "242"

var (
	ErrInvalidPhoneNumber = errors.New("invalid_phone_number")

	canonicalPhone = regexp.MustCompile(`^\+242[0-9]{8,9}$`)
)

// CanonicalMSISDN normalizes user input into +242XXXXXXXXX.
// Accepted shapes: +242…, 00242…, 242… and the bare national number.
func CanonicalMSISDN(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhoneNumber
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "+"):
	case strings.HasPrefix(digits, "00"+CountryCallingCode):
		digits = "+" + strings.TrimPrefix(digits, "00")
	case strings.HasPrefix(digits, CountryCallingCode) && len(digits) > 11:
		digits = "+" + digits
	default:
		digits = "+" + CountryCallingCode + digits
	}

	if !canonicalPhone.MatchString(digits) {
		return "", ErrInvalidPhoneNumber
	}
	return digits, nil
}

// NationalNumber strips the country prefix from a canonical number.
func NationalNumber(canonical string) string {
	return strings.TrimPrefix(canonical, "+"+CountryCallingCode)
}

// InternationalDigits is the canonical number without the leading +.
func InternationalDigits(canonical string) string {
	return strings.TrimPrefix(canonical, "+")
}
