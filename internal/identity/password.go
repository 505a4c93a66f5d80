package identity

import (
	"strings"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8

	// PasswordSymbols is the accepted set for the symbol rule.
	PasswordSymbols = `!@#$%^&*(),.?":{}|<>`
)

// User-facing reasons, in the order the rules are checked.
const (
	ReasonPasswordTooShort = "La contraseña debe tener al menos 8 caracteres"
	ReasonPasswordNoUpper  = "Debe contener al menos una mayúscula"
	ReasonPasswordNoLower  = "Debe contener al menos una minúscula"
	ReasonPasswordNoDigit  = "Debe contener al menos un número"
	ReasonPasswordNoSymbol = "Debe contener al menos un carácter especial (!@#$%^&*)"
)

// ValidatePasswordStrength checks pw against the password policy and returns
// the reason of the first failing rule. Rules run in a fixed order: length,
// uppercase, lowercase, digit, symbol.
func ValidatePasswordStrength(pw string) (bool, string) {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return false, ReasonPasswordTooShort
	}
	if !strings.ContainsFunc(pw, isUpperASCII) {
		return false, ReasonPasswordNoUpper
	}
	if !strings.ContainsFunc(pw, isLowerASCII) {
		return false, ReasonPasswordNoLower
	}
	if !strings.ContainsFunc(pw, isDigitASCII) {
		return false, ReasonPasswordNoDigit
	}
	if !strings.ContainsAny(pw, PasswordSymbols) {
		return false, ReasonPasswordNoSymbol
	}
	return true, ""
}

func isUpperASCII(r rune) bool { return r >= 'A' && r <= 'Z' }
func isLowerASCII(r rune) bool { return r >= 'a' && r <= 'z' }
func isDigitASCII(r rune) bool { return r >= '0' && r <= '9' }
