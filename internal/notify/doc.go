// Package notify runs the reminder pipeline. A Planner pass decides which
// goals are due a nudge, writes the message and queues it at a random minute
// inside the user's window. A Dispatcher pass sends whatever is due through
// push, email or WhatsApp and records the outcome. Failed sends are final.
package notify
