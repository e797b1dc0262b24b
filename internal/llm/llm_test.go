package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

// fakeModel replays scripted replies and records the messages it saw.
type fakeModel struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	calls    int
	messages [][]llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.messages = append(f.messages, msgs)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{RequestsPerMinute: 6000, Burst: 10}
}

func TestComplete_Success(t *testing.T) {
	fm := &fakeModel{replies: []string{"  Keep going!  "}}
	c := NewWithModel(fm, "fake", testConfig())

	got, err := c.Complete(context.Background(), Request{System: "be kind", Prompt: "nudge"})
	require.NoError(t, err)
	assert.Equal(t, "Keep going!", got)

	require.Len(t, fm.messages, 1)
	require.Len(t, fm.messages[0], 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fm.messages[0][0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fm.messages[0][1].Role)
}

func TestComplete_RetriesTransient(t *testing.T) {
	fm := &fakeModel{
		errs:    []error{errors.New("API returned 429: rate limit"), errors.New("503 service unavailable")},
		replies: []string{"", "", "ok"},
	}
	c := NewWithModel(fm, "fake", testConfig(), WithBackoff(time.Millisecond))

	got, err := c.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, fm.calls)
}

func TestComplete_PermanentErrorNotRetried(t *testing.T) {
	fm := &fakeModel{errs: []error{errors.New("invalid api key")}}
	c := NewWithModel(fm, "fake", testConfig(), WithBackoff(time.Millisecond))

	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, fm.calls)
}

func TestComplete_MaxRetries(t *testing.T) {
	transient := errors.New("502 bad gateway")
	fm := &fakeModel{errs: []error{transient, transient, transient}}
	c := NewWithModel(fm, "fake", testConfig(), WithBackoff(time.Millisecond), WithMaxRetries(2))

	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, fm.calls)
}

func TestComplete_EmptyResponse(t *testing.T) {
	c := NewWithModel(&fakeModel{replies: []string{"   "}}, "fake", testConfig())
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestComplete_Disabled(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: config.LLMProviderNone})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	assert.Equal(t, "none", c.Provider())

	_, err = c.Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrDisabled)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}

func TestNew_Providers(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.True(t, c.Enabled())

	c, err = New(config.LLMConfig{Provider: "anthropic", APIKey: "sk-ant-test", Model: "claude-3-5-haiku-latest"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Provider())

	_, err = New(config.LLMConfig{Provider: "mystery"})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.True(t, isRetryable(classify(errors.New("Overloaded"))))
	assert.True(t, isRetryable(classify(context.DeadlineExceeded)))
	assert.False(t, isRetryable(classify(context.Canceled)))
	assert.False(t, isRetryable(classify(errors.New("bad request"))))
}
