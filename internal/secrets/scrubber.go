package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scrubber redacts secrets and PII from free text. Safe for concurrent use.
type Scrubber struct {
	config *Config

	// gitleaks detectors are not documented as concurrency safe.
	mu       sync.Mutex
	detector *detect.Detector
}

type span struct {
	start, end int
}

// New builds a Scrubber. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scrubber{config: cfg}
	if cfg.Enabled && cfg.Gitleaks {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("loading gitleaks rules: %w", err)
		}
		s.detector = d
	}
	return s, nil
}

// Nop returns a disabled scrubber.
func Nop() *Scrubber {
	return &Scrubber{config: &Config{}}
}

// IsEnabled reports whether scrubbing is active.
func (s *Scrubber) IsEnabled() bool {
	return s != nil && s.config.Enabled
}

// Scrub redacts every finding in content.
func (s *Scrubber) Scrub(content string) *Result {
	start := time.Now()
	result := &Result{Original: content, Scrubbed: content, ByRule: map[string]int{}}
	if !s.IsEnabled() || content == "" {
		result.Duration = time.Since(start)
		return result
	}

	var spans []span
	add := func(ruleID, desc string, sp span) {
		if s.isAllowed(content[sp.start:sp.end]) {
			return
		}
		result.Findings = append(result.Findings, Finding{RuleID: ruleID, Description: desc, Start: sp.start, End: sp.end})
		result.ByRule[ruleID]++
		spans = append(spans, sp)
	}

	for _, rule := range s.config.compiledRules {
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if rule.Check != nil && !rule.Check(content[m[0]:m[1]]) {
				continue
			}
			add(rule.ID, rule.Description, span{m[0], m[1]})
		}
	}

	if s.detector != nil {
		s.mu.Lock()
		findings := s.detector.DetectString(content)
		s.mu.Unlock()
		for _, f := range findings {
			for _, sp := range locate(content, f.Secret) {
				add(f.RuleID, f.Description, sp)
			}
		}
	}

	if len(spans) > 0 {
		result.Scrubbed = redact(content, mergeSpans(spans), s.config.RedactionString)
	}
	result.Duration = time.Since(start)
	return result
}

func (s *Scrubber) isAllowed(match string) bool {
	for _, re := range s.config.compiledAllowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// locate finds every occurrence of secret. gitleaks reports line and column
// positions, so byte offsets are recovered by search.
func locate(content, secret string) []span {
	if secret == "" {
		return nil
	}
	var out []span
	for from := 0; ; {
		i := strings.Index(content[from:], secret)
		if i < 0 {
			return out
		}
		out = append(out, span{from + i, from + i + len(secret)})
		from += i + len(secret)
	}
}

// mergeSpans sorts spans and merges overlapping or touching ones.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

func redact(content string, spans []span, marker string) string {
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(content[prev:sp.start])
		b.WriteString(marker)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}
