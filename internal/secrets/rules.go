package secrets

import "strings"

// DefaultRules returns the PII rules. Credentials are left to gitleaks.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "email-address",
			Description: "Email address",
			Pattern:     `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
		},
		{
			ID:          "phone-number",
			Description: "Phone number",
			Pattern:     `(?:\+\d{1,3}[\s.-]?)?(?:\(\d{2,4}\)[\s.-]?)?\d{3}[\s.-]?\d{3,4}[\s.-]?\d{3,4}`,
			Check:       func(m string) bool { return countDigits(m) >= 10 },
		},
		{
			ID:          "card-number",
			Description: "Payment card number",
			Pattern:     `\b(?:\d[ -]?){12,18}\d\b`,
			Check:       luhn,
		},
		{
			ID:          "us-ssn",
			Description: "US social security number",
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		},
		{
			ID:          "openai-key",
			Description: "OpenAI API key",
			Pattern:     `\bsk-(?:proj-)?[A-Za-z0-9_-]{20,}`,
		},
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// luhn validates a card number, ignoring spaces and dashes.
func luhn(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
