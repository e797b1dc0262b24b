package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

// TwilioWhatsApp sends WhatsApp messages through Twilio.
type TwilioWhatsApp struct {
	c     *client
	url   string
	sid   string
	token string
	from  string
}

// NewTwilioWhatsApp creates the WhatsApp sender.
func NewTwilioWhatsApp(cfg config.WhatsAppConfig, opts ...Option) *TwilioWhatsApp {
	return &TwilioWhatsApp{
		c:     newClient(cfg.RatePerSec, opts),
		url:   trimBase(cfg.BaseURL) + "/2010-04-01/Accounts/" + url.PathEscape(cfg.AccountSID) + "/Messages.json",
		sid:   cfg.AccountSID,
		token: cfg.AuthToken.Value(),
		from:  cfg.From,
	}
}

func (*TwilioWhatsApp) Channel() Channel { return WhatsApp }

func whatsappAddr(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// Send implements Sender. msg.To holds E.164 numbers; only the first is used.
func (w *TwilioWhatsApp) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	form := url.Values{
		"From": {whatsappAddr(w.from)},
		"To":   {whatsappAddr(msg.To[0])},
		"Body": {msg.Body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(w.sid, w.token)

	var out struct {
		SID string `json:"sid"`
	}
	if err := w.c.do(ctx, req, &out); err != nil {
		return "", fmt.Errorf("twilio whatsapp: %w", err)
	}
	return out.SID, nil
}
