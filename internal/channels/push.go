package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

// ExpoPush sends through the Expo push API. Every token of a user receives
// the message; the first ticket id is returned.
type ExpoPush struct {
	c   *client
	url string
}

// NewExpoPush creates the push sender.
func NewExpoPush(cfg config.PushConfig, opts ...Option) *ExpoPush {
	c := newClient(cfg.RatePerSec, opts)
	c.withBearer(cfg.AccessToken.Value())
	return &ExpoPush{c: c, url: trimBase(cfg.BaseURL) + "/--/api/v2/push/send"}
}

func (*ExpoPush) Channel() Channel { return Push }

type expoMessage struct {
	To         string            `json:"to"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Sound      string            `json:"sound"`
	CategoryID string            `json:"categoryId,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

// Send implements Sender. The send fails only when no ticket is ok.
func (p *ExpoPush) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	batch := make([]expoMessage, 0, len(msg.To))
	for _, tok := range msg.To {
		batch = append(batch, expoMessage{
			To:         tok,
			Title:      msg.Title,
			Body:       msg.Body,
			Data:       msg.Data,
			Sound:      "default",
			CategoryID: "goal_reminder",
		})
	}

	var out struct {
		Data []expoTicket `json:"data"`
	}
	if err := p.c.postJSON(ctx, p.url, batch, &out); err != nil {
		return "", fmt.Errorf("expo push: %w", err)
	}

	var failures []string
	for _, t := range out.Data {
		if t.Status == "ok" {
			return t.ID, nil
		}
		reason := t.Message
		if t.Details.Error != "" {
			reason = t.Details.Error
		}
		failures = append(failures, reason)
	}
	if len(failures) == 0 {
		failures = append(failures, "no tickets returned")
	}
	return "", fmt.Errorf("expo push: %w: %s", ErrRejected, strings.Join(failures, "; "))
}
