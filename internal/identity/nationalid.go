package identity

import "strings"

var nationalIDSeparators = strings.NewReplacer(".", "", "-", "", " ", "")

// NormalizeNationalID strips separators and uppercases the check character,
// producing the form stored on profiles ("12.345.678-k" -> "12345678K").
func NormalizeNationalID(raw string) string {
	return strings.ToUpper(nationalIDSeparators.Replace(strings.TrimSpace(raw)))
}

// ValidateNationalID reports whether raw is a RUT whose check character
// matches the modulo-11 checksum of its digits.
func ValidateNationalID(raw string) bool {
	rut := NormalizeNationalID(raw)
	if len(rut) < 2 {
		return false
	}
	digits, check := rut[:len(rut)-1], rut[len(rut)-1]
	if !isASCIIDigits(digits) {
		return false
	}
	return check == nationalIDCheck(digits)
}

// nationalIDCheck computes the check character for an all-digit string.
// Weights run 2..7 from the rightmost digit and wrap back to 2.
func nationalIDCheck(digits string) byte {
	sum := 0
	multiplier := 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * multiplier
		multiplier++
		if multiplier > 7 {
			multiplier = 2
		}
	}
	switch check := 11 - sum%11; check {
	case 11:
		return '0'
	case 10:
		return 'K'
	default:
		return byte('0' + check)
	}
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
