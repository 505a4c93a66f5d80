package identity

import (
	"strconv"
	"strings"
	"unicode"
)

const MinHandleLength = 3

const (
	ReasonHandleTooShort   = "El nombre de usuario debe tener al menos 3 caracteres"
	ReasonHandleBadCharset = "El nombre de usuario solo puede contener letras, números y guión bajo"
)

// ValidateHandle checks a user-chosen login handle: at least three
// characters drawn from ASCII letters, digits and underscore.
func ValidateHandle(handle string) (bool, string) {
	if len(handle) < MinHandleLength {
		return false, ReasonHandleTooShort
	}
	for _, r := range handle {
		if !isUpperASCII(r) && !isLowerASCII(r) && !isDigitASCII(r) && r != '_' {
			return false, ReasonHandleBadCharset
		}
	}
	return true, ""
}

// BaseHandle derives the preferred handle from an email address: the local
// part with punctuation, symbols and spaces replaced by underscores.
func BaseHandle(email string) string {
	local := strings.TrimSpace(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, local)
}

// HandleCandidate returns the n-th handle to try for base: base itself for
// n == 0, then base1, base2, ...
func HandleCandidate(base string, n int) string {
	if n <= 0 {
		return base
	}
	return base + strconv.Itoa(n)
}
