package identity

import "strings"

const (
	phoneDigits      = 9
	phoneCountryCode = "56"
)

// NormalizePhone keeps only the significant digits of a phone number. A
// leading Chilean country code is dropped when what remains is a full
// nine-digit number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if isDigitASCII(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == len(phoneCountryCode)+phoneDigits && strings.HasPrefix(digits, phoneCountryCode) {
		return digits[len(phoneCountryCode):]
	}
	return digits
}

// ValidatePhone reports whether raw carries exactly nine significant digits.
func ValidatePhone(raw string) bool {
	return len(NormalizePhone(raw)) == phoneDigits
}
