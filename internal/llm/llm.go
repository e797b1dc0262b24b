// Package llm is the text-generation client shared by goal generation and
// notification copy. It wraps langchaingo models with a request rate limit
// and retries on transient failures.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
)

const (
	defaultMaxRetries  = 3
	defaultBaseBackoff = time.Second
	defaultMaxTokens   = 1024
)

var (
	// ErrDisabled is returned when no provider is configured.
	ErrDisabled = errors.New("llm provider disabled")
	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client generates text. The zero provider ("none") always fails with
// ErrDisabled so callers fall back to templates.
type Client struct {
	model       llms.Model
	provider    string
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	timeout     time.Duration
	logger      *logging.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBackoff sets the base retry backoff.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.baseBackoff = d }
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// New builds a client for the configured provider.
func New(cfg config.LLMConfig, opts ...Option) (*Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout.Duration()}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "", config.LLMProviderNone:
		return NewWithModel(nil, config.LLMProviderNone, cfg, opts...), nil
	case config.LLMProviderOpenAI:
		o := []openai.Option{
			openai.WithToken(cfg.APIKey.Value()),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			o = append(o, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(o...)
	case config.LLMProviderAnthropic:
		o := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey.Value()),
			anthropic.WithModel(cfg.Model),
			anthropic.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			o = append(o, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(o...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}
	return NewWithModel(model, cfg.Provider, cfg, opts...), nil
}

// NewWithModel wraps an existing langchaingo model. A nil model yields a
// disabled client.
func NewWithModel(model llms.Model, provider string, cfg config.LLMConfig, opts ...Option) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		model:       model,
		provider:    provider,
		limiter:     rate.NewLimiter(rate.Limit(rpm/60.0), burst),
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		timeout:     cfg.Timeout.Duration(),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a model is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.model != nil
}

// Provider names the backing provider.
func (c *Client) Provider() string {
	if c == nil {
		return config.LLMProviderNone
	}
	return c.provider
}

// Complete runs req, waiting for the rate limiter and retrying transient
// failures with exponential backoff.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug(ctx, "retrying llm call",
				zap.String("provider", c.provider),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.generate(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) generate(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(req.Temperature),
	)
	if err != nil {
		return "", classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Trace(ctx, "llm reply", zap.String("provider", c.provider), zap.Int("len", len(text)))
	return text, nil
}
