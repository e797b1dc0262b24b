package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func piiOnly(t *testing.T) *Scrubber {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Gitleaks = false
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestNew_InvalidRules(t *testing.T) {
	_, err := New(&Config{Enabled: true, Rules: []Rule{{Pattern: "x"}}})
	assert.Error(t, err)

	_, err = New(&Config{Enabled: true, Rules: []Rule{{ID: "r"}}})
	assert.Error(t, err)

	_, err = New(&Config{Enabled: true, Rules: []Rule{{ID: "r", Pattern: "[bad"}}})
	assert.Error(t, err)

	_, err = New(&Config{Enabled: true, AllowList: []string{"(unclosed"}})
	assert.Error(t, err)
}

func TestScrub_PII(t *testing.T) {
	s := piiOnly(t)

	tests := []struct {
		name   string
		in     string
		want   string
		ruleID string
	}{
		{
			name:   "email",
			in:     "email me at jane.doe@example.com about the gym",
			want:   "email me at [REDACTED] about the gym",
			ruleID: "email-address",
		},
		{
			name:   "phone",
			in:     "call +1 555-123-4567 to book lessons",
			want:   "call [REDACTED] to book lessons",
			ruleID: "phone-number",
		},
		{
			name:   "card passes luhn",
			in:     "card 4111 1111 1111 1111 for savings",
			want:   "card [REDACTED] for savings",
			ruleID: "card-number",
		},
		{
			name:   "ssn",
			in:     "my ssn is 123-45-6789",
			want:   "my ssn is [REDACTED]",
			ruleID: "us-ssn",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Scrub(tt.in)
			assert.Equal(t, tt.want, res.Scrubbed)
			assert.True(t, res.HasFindings())
			assert.Contains(t, res.RuleIDs(), tt.ruleID)
		})
	}
}

func TestScrub_LeavesGoalsAlone(t *testing.T) {
	s := piiOnly(t)
	in := "run 5k three times a week, save 2000 for a bike by 2026-12-01, learn 20 spanish words"
	res := s.Scrub(in)
	assert.Equal(t, in, res.Scrubbed)
	assert.False(t, res.HasFindings())
}

func TestScrub_CardFailingLuhnKept(t *testing.T) {
	s := piiOnly(t)
	res := s.Scrub("order 4111 1111 1111 1112")
	assert.NotContains(t, res.RuleIDs(), "card-number")
}

func TestScrub_AllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gitleaks = false
	cfg.AllowList = []string{`@example\.org$`}
	s, err := New(cfg)
	require.NoError(t, err)

	res := s.Scrub("write to team@example.org and boss@corp.com")
	assert.Equal(t, "write to team@example.org and [REDACTED]", res.Scrubbed)
	assert.Len(t, res.Findings, 1)
}

func TestScrub_OverlappingSpansMerge(t *testing.T) {
	s, err := New(&Config{
		Enabled:         true,
		RedactionString: "#",
		Rules: []Rule{
			{ID: "a", Pattern: "abc"},
			{ID: "b", Pattern: "bcd"},
		},
	})
	require.NoError(t, err)

	res := s.Scrub("xabcdx")
	assert.Equal(t, "x#x", res.Scrubbed)
	assert.Equal(t, 1, res.ByRule["a"])
	assert.Equal(t, 1, res.ByRule["b"])
}

func TestScrub_Gitleaks(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	token := "ghp_" + "aBcDeFgHiJkLmNoPqRsTuVwXyZ0123456789"
	res := s.Scrub("my goal: rotate token " + token + " this week")
	assert.NotContains(t, res.Scrubbed, token)
	assert.True(t, res.HasFindings())
}

func TestScrub_Disabled(t *testing.T) {
	s := Nop()
	assert.False(t, s.IsEnabled())
	res := s.Scrub("jane@example.com")
	assert.Equal(t, "jane@example.com", res.Scrubbed)

	var nilScrubber *Scrubber
	assert.False(t, nilScrubber.IsEnabled())
}

func TestLuhn(t *testing.T) {
	assert.True(t, luhn("4111111111111111"))
	assert.True(t, luhn("5500-0000-0000-0004"))
	assert.False(t, luhn("1234567812345678"))
	assert.False(t, luhn("4111"))
}

func TestLocate(t *testing.T) {
	assert.Equal(t, []span{{0, 2}, {3, 5}}, locate("ab ab", "ab"))
	assert.Nil(t, locate("abc", ""))
}
