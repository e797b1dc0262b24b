// Package services builds the goaltrack service graph from configuration.
//
// Build opens the store, connects the optional event bus, and wires the
// progress, goal generation and notification services around them. Both
// the API daemon and the notification worker start from the same Registry,
// so the two processes always agree on channels, timezones and templates.
package services
