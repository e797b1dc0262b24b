// Package progress applies goal writes and keeps the derived gamification
// state consistent: per-goal XP, the one-time completion transition, medal
// tiers and the profile XP/level.
//
// Profile XP is never incremented. Every write ends in ResyncProfile, which
// recomputes XP as the sum of all goals' XP plus the bonus of every medal, so
// running it twice yields the same value.
package progress
