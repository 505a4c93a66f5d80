// Package email normalizes and validates email addresses and derives display
// names from them.
package email

import (
	"strings"
	"unicode"

	"github.com/asaskevich/govalidator"
)

// Normalize trims and lowercases an address. Accounts are matched on the
// normalized form.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsValid reports whether addr is a syntactically valid address.
func IsValid(addr string) bool {
	return addr != "" && govalidator.IsEmail(addr)
}

// LocalPart returns the text before the last '@', or addr when there is none.
func LocalPart(addr string) string {
	if at := strings.LastIndexByte(addr, '@'); at >= 0 {
		return addr[:at]
	}
	return addr
}

// DeriveNames guesses a first and last name from the local part, splitting
// on dots, underscores, hyphens and plus signs. Missing parts fall back to
// "Biblioteca".
func DeriveNames(addr string) (first, last string) {
	parts := strings.FieldsFunc(LocalPart(addr), func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	first, last = "Biblioteca", "Biblioteca"
	if len(parts) > 0 {
		first = capitalize(parts[0])
	}
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
