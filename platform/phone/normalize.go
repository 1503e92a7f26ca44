// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "NL"

// minimizedLength is the number of trailing significant digits used when
// matching numbers that were stored with differing prefixes or formatting.
const minimizedLength = 7

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Minimize reduces a phone number to its trailing significant digits so that
// differently formatted or differently prefixed forms of the same number
// compare equal. Two numbers are considered the same line when their
// minimized forms match.
func Minimize(input string) string {
	digits := digitsOf(NormalizeE164(input))
	if len(digits) > minimizedLength {
		return digits[len(digits)-minimizedLength:]
	}
	return digits
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
