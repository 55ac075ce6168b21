package auth

import "strings"

// CanonicalPhone is a normalized 12-digit Indian mobile number carrying the
// country prefix, e.g. "919876543210". All challenge and profile lookups key
// on this form.
type CanonicalPhone string

// String returns the canonical digits.
func (p CanonicalPhone) String() string { return string(p) }

const countryPrefix = "91"

// NormalizePhone strips non-digit characters and canonicalizes the remainder.
// A bare 10-digit national number gains the country prefix; a 12-digit number
// must already carry it. Every other shape fails with ErrInvalidPhoneFormat.
func NormalizePhone(raw string) (CanonicalPhone, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch len(digits) {
	case 10:
		return CanonicalPhone(countryPrefix + digits), nil
	case 12:
		if !strings.HasPrefix(digits, countryPrefix) {
			return "", ErrInvalidPhoneFormat
		}
		return CanonicalPhone(digits), nil
	default:
		return "", ErrInvalidPhoneFormat
	}
}
