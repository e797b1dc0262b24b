// Package events publishes goal and notification lifecycle events.
//
// Events go to NATS subjects of the form
//
//	{prefix}.{type}.{user_id}
//
// e.g. goaltrack.goal.completed.u-123. Types contain a dot, so a consumer
// of one type subscribes to goaltrack.goal.completed.* and a consumer of
// everything to goaltrack.>. Publishing is fire-and-forget: a failed publish
// is logged by the caller and never fails the operation.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Type names an event.
type Type string

const (
	GoalCreated           Type = "goal.created"
	GoalSaved             Type = "goal.saved"
	GoalCompleted         Type = "goal.completed"
	GoalDeleted           Type = "goal.deleted"
	MedalAwarded          Type = "medal.awarded"
	ProfileResynced       Type = "profile.resynced"
	NotificationScheduled Type = "notification.scheduled"
	NotificationSent      Type = "notification.sent"
	NotificationFailed    Type = "notification.failed"
	UserDeleted           Type = "user.deleted"
)

// Event is the JSON payload published for every type.
type Event struct {
	ID     string         `json:"id"`
	Type   Type           `json:"type"`
	UserID string         `json:"userId"`
	GoalID string         `json:"goalId,omitempty"`
	At     time.Time      `json:"at"`
	Data   map[string]any `json:"data,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(t Type, userID, goalID string, data map[string]any) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		UserID: userID,
		GoalID: goalID,
		At:     time.Now().UTC(),
		Data:   data,
	}
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher wraps an open connection.
func NewNATSPublisher(nc *nats.Conn, prefix string) (*NATSPublisher, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	if prefix == "" {
		prefix = "goaltrack"
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Connect dials url with reconnect settings suited to a long-running service.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(e Event) string {
	return Subject(p.prefix, e.Type, e.UserID)
}

// Subject builds {prefix}.{type}.{user}. Characters NATS treats as
// separators or wildcards are replaced in the user id.
func Subject(prefix string, t Type, userID string) string {
	user := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(userID)
	if user == "" {
		user = "_"
	}
	return prefix + "." + string(t) + "." + user
}

// Publish marshals e and publishes it.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(e), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Recorder keeps published events in memory for tests.
type Recorder struct {
	events chan Event
}

// NewRecorder buffers up to n events.
func NewRecorder(n int) *Recorder {
	return &Recorder{events: make(chan Event, n)}
}

// Publish records e, dropping it when the buffer is full.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	select {
	case r.events <- e:
	default:
	}
	return nil
}

// Drain returns every event recorded so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = (*Recorder)(nil)
)
