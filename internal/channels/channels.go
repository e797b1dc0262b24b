// Package channels delivers notification text through third-party APIs:
// Expo push, Resend email and Twilio WhatsApp. Every sender is rate limited
// and makes exactly one attempt per message.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Channel names a delivery route.
type Channel string

const (
	Push     Channel = "push"
	Email    Channel = "email"
	WhatsApp Channel = "whatsapp"
)

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case Push, Email, WhatsApp:
		return c, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

var (
	// ErrNoRecipients is returned for a message without destinations.
	ErrNoRecipients = errors.New("message has no recipients")
	// ErrRejected is returned when the provider refuses the message.
	ErrRejected = errors.New("provider rejected message")
)

// Message is one notification to deliver.
type Message struct {
	To      []string
	Title   string
	Subject string
	Body    string
	// Data travels with push notifications, e.g. the goal id for the
	// complete action.
	Data map[string]string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, msg Message) (string, error)
}

// Option configures a sender.
type Option func(*client)

// WithHTTPClient sets the base HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.base = hc }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.timeout = d }
}

// client is the HTTP plumbing shared by every sender.
type client struct {
	base    *http.Client
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

func newClient(ratePerSec float64, opts []Option) *client {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	c := &client{
		base:    &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = c.base
	return c
}

// withBearer routes requests through an oauth2 static token source.
func (c *client) withBearer(token string) {
	if token == "" {
		return
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	c.http = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// do sends req after waiting for the limiter and decodes a 2xx JSON body
// into out. Non-2xx responses become errors wrapping ErrRejected with the
// provider's message.
func (c *client) do(ctx context.Context, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w (%d): %s", ErrRejected, resp.StatusCode, providerMessage(body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *client) postJSON(ctx context.Context, url string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(ctx, req, out)
}

// providerMessage pulls a human readable error out of a provider response.
func providerMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Message != "":
			return e.Message
		case len(e.Errors) > 0 && e.Errors[0].Message != "":
			return e.Errors[0].Message
		case e.Error != nil:
			return fmt.Sprint(e.Error)
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func trimBase(u string) string {
	return strings.TrimRight(u, "/")
}
