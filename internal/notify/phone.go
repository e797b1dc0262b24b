package notify

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhone is returned for numbers that cannot form an E.164 address.
var ErrInvalidPhone = errors.New("invalid phone number")

// FormatE164 joins a country calling code and a national number into
// +<digits>. Formatting characters are dropped and a national trunk zero is
// removed. A number already starting with + ignores countryCode.
func FormatE164(countryCode, number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhone)
	}
	international := strings.HasPrefix(number, "+") || strings.HasPrefix(number, "00")

	digits := onlyDigits(number)
	if strings.HasPrefix(number, "00") {
		digits = strings.TrimPrefix(digits, "00")
	}
	if !international {
		cc := onlyDigits(countryCode)
		if cc == "" {
			return "", fmt.Errorf("%w: country code required for %q", ErrInvalidPhone, number)
		}
		digits = cc + strings.TrimPrefix(digits, "0")
	}
	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return "", fmt.Errorf("%w: %d digits", ErrInvalidPhone, len(digits))
	}
	return "+" + digits, nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' || r == '+':
		default:
			return ""
		}
	}
	return b.String()
}
