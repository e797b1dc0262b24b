// Package secrets scrubs free text before it leaves the process.
//
// Thought dumps typed by users go to a third-party LLM. Before that call the
// text passes through a Scrubber, which redacts credentials found by the
// gitleaks default rule set plus personal data (emails, phone numbers, card
// numbers) matched by the package's own rules. Findings carry rule ids and
// positions, never the matched value.
package secrets
