package secrets

import "time"

// Result is the outcome of one scrub.
type Result struct {
	Original string         `json:"-"`
	Scrubbed string         `json:"scrubbed"`
	Findings []Finding      `json:"findings,omitempty"`
	Duration time.Duration  `json:"duration"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// Finding locates one redacted span. The matched text is not kept.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// HasFindings returns true if anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rule ids that matched, for logging.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	return ids
}
