package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

// Option configures a Hosted provider.
type Option func(*Hosted)

// WithHTTPClient sets the base HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(h *Hosted) { h.base = hc }
}

// Hosted talks to the hosted auth API: GET /auth/v1/user to verify a token
// and DELETE /auth/v1/admin/users/{id} with the service key.
type Hosted struct {
	baseURL    string
	anonKey    string
	serviceKey string
	base       *http.Client
	admin      *http.Client
	timeout    time.Duration
}

// NewHosted creates a hosted provider.
func NewHosted(cfg config.AuthConfig, opts ...Option) (*Hosted, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("auth base url is required")
	}
	h := &Hosted{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:    cfg.AnonKey.Value(),
		serviceKey: cfg.ServiceKey.Value(),
		base:       &http.Client{},
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.admin = h.base
	if cfg.ServiceKey.IsSet() {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, h.base)
		h.admin = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: h.serviceKey}))
	}
	return h, nil
}

// Verify resolves token to its user.
func (h *Hosted) Verify(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	req, err := http.NewRequest(http.MethodGet, h.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var u User
	if err := h.do(ctx, h.base, req, &u, ErrUnauthorized); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, &Error{Status: http.StatusUnauthorized, Message: "user not found", kind: ErrUnauthorized}
	}
	return &u, nil
}

// DeleteUser removes the account with the service key.
func (h *Hosted) DeleteUser(ctx context.Context, userID string) error {
	req, err := http.NewRequest(http.MethodDelete, h.baseURL+"/auth/v1/admin/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	if h.serviceKey != "" {
		req.Header.Set("apikey", h.serviceKey)
	}
	return h.do(ctx, h.admin, req, nil, ErrProvider)
}

func (h *Hosted) do(ctx context.Context, hc *http.Client, req *http.Request, out any, kind error) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if h.anonKey != "" && req.Header.Get("apikey") == "" {
		req.Header.Set("apikey", h.anonKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrProvider, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: providerMessage(body, resp.Status), kind: kind}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrProvider, err)
	}
	return nil
}

// providerMessage picks the human readable field of an error body.
func providerMessage(body []byte, fallback string) string {
	var v struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &v) == nil {
		for _, s := range []string{v.Msg, v.Message, v.ErrorDescription, v.Error} {
			if s != "" {
				return s
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		return s
	}
	return fallback
}
