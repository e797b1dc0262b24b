package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/goaltrack/internal/channels"
	"github.com/fyrsmithlabs/goaltrack/internal/config"
	"github.com/fyrsmithlabs/goaltrack/internal/events"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
)

func TestNewRegistry(t *testing.T) {
	var _ Registry = (*registry)(nil)

	reg := NewRegistry(Options{})
	assert.Nil(t, reg.Store())
	assert.Nil(t, reg.Progress())
	assert.Nil(t, reg.Planner())
	assert.Equal(t, events.Nop{}, reg.Publisher())
	assert.NoError(t, reg.Close())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "goaltrack.db")
	cfg.Auth.Tokens = map[string]string{"tok": "u1"}
	return cfg
}

func TestBuild(t *testing.T) {
	reg, err := Build(context.Background(), testConfig(t), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	assert.NotNil(t, reg.Store())
	assert.NotNil(t, reg.Auth())
	assert.NotNil(t, reg.Progress())
	assert.NotNil(t, reg.Generator())
	assert.NotNil(t, reg.Templates())
	assert.NotNil(t, reg.Planner())
	assert.NotNil(t, reg.Dispatcher())
	require.NoError(t, reg.Store().Ping(context.Background()))

	u, err := reg.Auth().Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestBuild_InvalidTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.DefaultTimezone = "Mars/Olympus"
	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "default timezone")
}

func TestSenders(t *testing.T) {
	cfg := config.Default()
	assert.Empty(t, Senders(cfg))

	cfg.WhatsApp.Enabled = true
	cfg.Push.Enabled = true
	got := Senders(cfg)
	require.Len(t, got, 2)
	assert.Equal(t, channels.Push, got[0].Channel())
	assert.Equal(t, channels.WhatsApp, got[1].Channel())
}
