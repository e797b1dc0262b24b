// Package tracker applies goal mutations optimistically.
//
// A Controller keeps one state machine per goal. While writes are in flight
// the goal is Pending: View returns the pending override, computed by
// applying each mutation to the previous override rather than to the last
// server snapshot, so rapid repeated toggles never lose an edit. Writes may
// resolve in any order. When the last one resolves and the server value
// matches the override, the goal returns to Idle. If it does not match, one
// convergence write of the override is issued. A failed write discards the
// override and reports the error.
package tracker
