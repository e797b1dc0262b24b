package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/channels"
	"github.com/fyrsmithlabs/goaltrack/internal/events"
	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

var (
	// ErrNoChannel is recorded when a user has no reachable channel.
	ErrNoChannel = errors.New("no delivery channel for user")
	// ErrNoRecipient is returned when the requested channel has no address.
	ErrNoRecipient = errors.New("user has no address for channel")
	// ErrChannelDisabled is returned for channels without a sender.
	ErrChannelDisabled = errors.New("channel not configured")
)

// DispatchStore is the persistence a dispatch pass needs.
type DispatchStore interface {
	DueNotifications(ctx context.Context, cutoff time.Time, limit int) ([]*store.ScheduledNotification, error)
	ClaimNotification(ctx context.Context, id string) (bool, error)
	MarkNotificationSent(ctx context.Context, id, channel string, sentAt time.Time) error
	MarkNotificationFailed(ctx context.Context, id, channel, reason string) error
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
	GetPreferences(ctx context.Context, userID string) (*store.Preferences, error)
	GetGoal(ctx context.Context, id string) (*goal.Goal, error)
}

// DispatchResult is the send-notifications response.
type DispatchResult struct {
	SentCount      int      `json:"sentCount"`
	FailedCount    int      `json:"failedCount"`
	TotalProcessed int      `json:"totalProcessed"`
	Errors         []string `json:"errors,omitempty"`
}

// DirectRequest is a send-email-notification or
// send-whatsapp-notification call.
type DirectRequest struct {
	GoalID  string `json:"goalId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
}

// DirectResult is the response of a direct send.
type DirectResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// Dispatcher sends due notifications.
type Dispatcher struct {
	store     DispatchStore
	senders   map[channels.Channel]channels.Sender
	publisher events.Publisher
	metrics   *Metrics
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	lookahead time.Duration
	batchSize int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSender enables a channel.
func WithSender(s channels.Sender) DispatcherOption {
	return func(d *Dispatcher) { d.senders[s.Channel()] = s }
}

// WithDispatcherPublisher sets the event publisher.
func WithDispatcherPublisher(pub events.Publisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = pub }
}

// WithDispatcherMetrics enables Prometheus metrics.
func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDispatcherClock overrides time.Now.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithLookahead sends rows scheduled up to d in the future.
func WithLookahead(la time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.lookahead = la }
}

// WithBatchSize caps rows per pass.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.batchSize = n }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(st DispatchStore, opts ...DispatcherOption) (*Dispatcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	d := &Dispatcher{
		store:     st,
		senders:   make(map[channels.Channel]channels.Sender),
		publisher: events.Nop{},
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		lookahead: 5 * time.Minute,
		batchSize: 500,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run sends every pending row scheduled before now plus the lookahead.
// Each row is claimed before the channel call and then marked sent or
// failed. Rows claimed by another pass are skipped.
func (d *Dispatcher) Run(ctx context.Context) (*DispatchResult, error) {
	ctx, span := d.tracer.Start(ctx, "notify.dispatch")
	defer span.End()
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.PassDuration.WithLabelValues("dispatch").Observe(time.Since(start).Seconds())
		}
	}()

	due, err := d.store.DueNotifications(ctx, d.now().Add(d.lookahead), d.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load due notifications")
		return nil, fmt.Errorf("loading due notifications: %w", err)
	}

	res := &DispatchResult{}
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		nctx := logging.WithGoalID(logging.WithUserID(ctx, n.UserID), n.GoalID)
		claimed, err := d.store.ClaimNotification(nctx, n.ID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("notification %s: %v", n.ID, err))
			continue
		}
		if !claimed {
			d.logger.Debug(nctx, "notification claimed by another pass", zap.String("notification_id", n.ID))
			continue
		}
		res.TotalProcessed++
		ch, id, err := d.deliver(nctx, n)
		if err != nil {
			res.FailedCount++
			d.fail(nctx, n, ch, err, res)
			continue
		}
		if err := d.store.MarkNotificationSent(nctx, n.ID, string(ch), d.now().UTC()); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("notification %s: %v", n.ID, err))
		}
		res.SentCount++
		if d.metrics != nil {
			d.metrics.Sent.WithLabelValues(string(ch)).Inc()
		}
		d.logger.Info(nctx, "notification sent", zap.String("channel", string(ch)), zap.String("message_id", id))
		d.publish(nctx, events.New(events.NotificationSent, n.UserID, n.GoalID, map[string]any{
			"notificationId": n.ID,
			"channel":        string(ch),
		}))
	}

	span.SetAttributes(
		attribute.Int("notifications.sent", res.SentCount),
		attribute.Int("notifications.failed", res.FailedCount),
	)
	return res, nil
}

func (d *Dispatcher) fail(ctx context.Context, n *store.ScheduledNotification, ch channels.Channel, cause error, res *DispatchResult) {
	reason := cause.Error()
	if err := d.store.MarkNotificationFailed(ctx, n.ID, string(ch), reason); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("notification %s: %v", n.ID, err))
	}
	label := string(ch)
	if label == "" {
		label = "none"
	}
	if d.metrics != nil {
		d.metrics.Failed.WithLabelValues(label).Inc()
	}
	d.logger.Warn(ctx, "notification failed", zap.String("channel", label), zap.Error(cause))
	d.publish(ctx, events.New(events.NotificationFailed, n.UserID, n.GoalID, map[string]any{
		"notificationId": n.ID,
		"channel":        label,
		"reason":         reason,
	}))
}

// deliver resolves the user's channel, push first, then email, then
// WhatsApp, and sends through it.
func (d *Dispatcher) deliver(ctx context.Context, n *store.ScheduledNotification) (channels.Channel, string, error) {
	ch, to, err := d.resolve(ctx, n.UserID)
	if err != nil {
		return "", "", err
	}
	title := "Goal reminder"
	category := ""
	if g, err := d.store.GetGoal(ctx, n.GoalID); err == nil {
		title = g.Title
		category = string(g.Category())
	} else if !errors.Is(err, store.ErrNotFound) {
		return ch, "", err
	}

	id, err := d.senders[ch].Send(ctx, channels.Message{
		To:      to,
		Title:   title,
		Subject: "Reminder: " + title,
		Body:    n.Message,
		Data: map[string]string{
			"notificationId": n.ID,
			"goalId":         n.GoalID,
			"category":       category,
		},
	})
	return ch, id, err
}

func (d *Dispatcher) resolve(ctx context.Context, userID string) (channels.Channel, []string, error) {
	if _, ok := d.senders[channels.Push]; ok {
		tokens, err := d.store.DeviceTokens(ctx, userID)
		if err != nil {
			return "", nil, err
		}
		if len(tokens) > 0 {
			return channels.Push, tokens, nil
		}
	}
	prefs, err := d.store.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrNoChannel
	}
	if err != nil {
		return "", nil, err
	}
	for _, ch := range []channels.Channel{channels.Email, channels.WhatsApp} {
		if _, ok := d.senders[ch]; !ok {
			continue
		}
		if to, err := recipient(ch, prefs); err == nil {
			return ch, []string{to}, nil
		}
	}
	return "", nil, ErrNoChannel
}

func recipient(ch channels.Channel, prefs *store.Preferences) (string, error) {
	switch ch {
	case channels.Email:
		if prefs.Email == "" {
			return "", fmt.Errorf("%w: email", ErrNoRecipient)
		}
		return prefs.Email, nil
	case channels.WhatsApp:
		if prefs.PhoneNumber == "" {
			return "", fmt.Errorf("%w: whatsapp", ErrNoRecipient)
		}
		return FormatE164(prefs.CountryCode, prefs.PhoneNumber)
	}
	return "", fmt.Errorf("%w: %s", ErrChannelDisabled, ch)
}

// SendDirect sends one message through a named channel immediately,
// bypassing the queue.
func (d *Dispatcher) SendDirect(ctx context.Context, ch channels.Channel, req DirectRequest) (*DirectResult, error) {
	ctx, span := d.tracer.Start(ctx, "notify.send_direct")
	defer span.End()
	span.SetAttributes(attribute.String("channel", string(ch)))

	if req.UserID == "" || req.Message == "" {
		return nil, fmt.Errorf("%w: userId and message are required", ErrNoRecipient)
	}
	sender, ok := d.senders[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelDisabled, ch)
	}
	ctx = logging.WithUserID(ctx, req.UserID)

	var to []string
	if ch == channels.Push {
		tokens, err := d.store.DeviceTokens(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("%w: push", ErrNoRecipient)
		}
		to = tokens
	} else {
		prefs, err := d.store.GetPreferences(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrNoRecipient, ch)
			}
			return nil, err
		}
		addr, err := recipient(ch, prefs)
		if err != nil {
			return nil, err
		}
		to = []string{addr}
	}

	subject := req.Subject
	if subject == "" {
		subject = "Goal reminder"
	}
	id, err := sender.Send(ctx, channels.Message{
		To:      to,
		Title:   subject,
		Subject: subject,
		Body:    req.Message,
		Data:    map[string]string{"goalId": req.GoalID},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send")
		if d.metrics != nil {
			d.metrics.Failed.WithLabelValues(string(ch)).Inc()
		}
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.Sent.WithLabelValues(string(ch)).Inc()
	}
	return &DirectResult{Success: true, MessageID: id}, nil
}

func (d *Dispatcher) publish(ctx context.Context, e events.Event) {
	if err := d.publisher.Publish(ctx, e); err != nil {
		d.logger.Warn(ctx, "event publish failed", zap.String("event", string(e.Type)), zap.Error(err))
	}
}
