package validator

import (
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

const (
	NameMobile  = "mobile"
	NamePincode = "pincode"
	NameEmail   = "email"
	NameText    = "text"
)

const maxFreeTextLen = 120

var (
	mobileRe  = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	pincodeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	digitsRe  = regexp.MustCompile(`[^0-9]`)
)

func builtins() map[string]Validator {
	return map[string]Validator{
		NameMobile:  Func(validateMobile),
		NamePincode: Func(validatePincode),
		NameEmail:   Func(validateEmail),
		NameText:    Func(validateText),
	}
}

// validateMobile normalizes Indian mobile numbers: separators removed,
// +91/91/0 country and trunk prefixes stripped, ten digits starting 6-9.
func validateMobile(raw string) (string, error) {
	digits := digitsRe.ReplaceAllString(raw, "")
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	if !mobileRe.MatchString(digits) {
		return "", fmt.Errorf("%w: not a ten digit mobile number", contractx.ErrValidation)
	}
	return digits, nil
}

func validatePincode(raw string) (string, error) {
	digits := digitsRe.ReplaceAllString(raw, "")
	if !pincodeRe.MatchString(digits) {
		return "", fmt.Errorf("%w: not a six digit pincode", contractx.ErrValidation)
	}
	return digits, nil
}

func validateEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if !emailRe.MatchString(trimmed) {
		return "", fmt.Errorf("%w: not an email address", contractx.ErrValidation)
	}
	return trimmed, nil
}

func validateText(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty text", contractx.ErrValidation)
	}
	if len(trimmed) > maxFreeTextLen {
		return "", fmt.Errorf("%w: text too long", contractx.ErrValidation)
	}
	return trimmed, nil
}
