package channels

import (
	"context"
	"fmt"
	"html"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

// ResendEmail sends through the Resend email API.
type ResendEmail struct {
	c    *client
	url  string
	from string
}

// NewResendEmail creates the email sender.
func NewResendEmail(cfg config.EmailConfig, opts ...Option) *ResendEmail {
	c := newClient(cfg.RatePerSec, opts)
	c.withBearer(cfg.APIKey.Value())
	return &ResendEmail{c: c, url: trimBase(cfg.BaseURL) + "/emails", from: cfg.From}
}

func (*ResendEmail) Channel() Channel { return Email }

// Send implements Sender.
func (e *ResendEmail) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	subject := msg.Subject
	if subject == "" {
		subject = msg.Title
	}
	in := map[string]any{
		"from":    e.from,
		"to":      msg.To,
		"subject": subject,
		"text":    msg.Body,
		"html":    "<p>" + html.EscapeString(msg.Body) + "</p>",
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := e.c.postJSON(ctx, e.url, in, &out); err != nil {
		return "", fmt.Errorf("resend email: %w", err)
	}
	return out.ID, nil
}
