package secrets

import (
	"fmt"
	"regexp"
)

// Config configures the scrubber.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// Gitleaks turns on the gitleaks default rule set on top of Rules.
	Gitleaks bool `koanf:"gitleaks"`

	Rules           []Rule   `koanf:"rules"`
	RedactionString string   `koanf:"redaction_string"`
	AllowList       []string `koanf:"allow_list"`

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule is a regex-based detection rule.
type Rule struct {
	ID          string `koanf:"id"`
	Description string `koanf:"description"`
	Pattern     string `koanf:"pattern"`
	// Check optionally confirms a match, e.g. a Luhn check for card numbers.
	Check func(match string) bool `koanf:"-"`
}

type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// DefaultConfig enables gitleaks plus the PII rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Gitleaks:        true,
		RedactionString: "[REDACTED]",
		Rules:           DefaultRules(),
	}
}

// Validate compiles rules and the allow list.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RedactionString == "" {
		c.RedactionString = "[REDACTED]"
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		c.compiledRules = append(c.compiledRules, &compiledRule{Rule: rule, pattern: re})
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, re)
	}
	return nil
}
