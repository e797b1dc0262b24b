// Package auth verifies bearer tokens against the hosted auth provider, or
// a static token map in development and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

var (
	// ErrUnauthorized is returned for missing, malformed or rejected tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrProvider is returned when an admin call to the provider fails.
	ErrProvider = errors.New("auth provider error")
)

// Error carries the provider's own message so it can be shown verbatim.
type Error struct {
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (%d): %s", e.kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.kind }

// User is an authenticated principal.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Provider verifies tokens and removes accounts.
type Provider interface {
	Verify(ctx context.Context, token string) (*User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// New builds the provider named in cfg.
func New(cfg config.AuthConfig, opts ...Option) (Provider, error) {
	switch cfg.Provider {
	case "hosted":
		return NewHosted(cfg, opts...)
	case "static", "":
		return NewStatic(cfg.Tokens), nil
	}
	return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return token, nil
}

// Static maps fixed tokens to user ids.
type Static struct {
	mu      sync.RWMutex
	tokens  map[string]string
	deleted map[string]bool
}

// NewStatic creates a provider from token -> user id pairs.
func NewStatic(tokens map[string]string) *Static {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &Static{tokens: cp, deleted: make(map[string]bool)}
}

func (s *Static) Verify(_ context.Context, token string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	if !ok || s.deleted[id] {
		return nil, &Error{Status: 401, Message: "invalid token", kind: ErrUnauthorized}
	}
	return &User{ID: id}, nil
}

// DeleteUser revokes every token of userID.
func (s *Static) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[userID] = true
	return nil
}
