package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the goaltrack config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "goaltrack")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, filepath.Join(dir, "goaltrack.db"), cfg.Store.Path)
	assert.Equal(t, "static", cfg.Auth.Provider)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, 100, cfg.Notify.MaxMessageLen)
	assert.Equal(t, 5*time.Minute, cfg.Notify.Lookahead.Duration())
	assert.Equal(t, SchedulerInProcess, cfg.Scheduler.Mode)
	assert.Equal(t, "goaltrack-notifications", cfg.Temporal.TaskQueue)
	assert.Equal(t, "goaltrack", cfg.Observability.ServiceName)
}

func TestLoadWithFile_YAMLAndEnv(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  http_port: 9191
  shutdown_timeout: 3s
  cron_secret: s3cret
llm:
  provider: openai
  api_key: sk-test
  requests_per_minute: 30
notify:
  default_timezone: Europe/Berlin
scheduler:
  mode: temporal
`, 0600)

	t.Setenv("GOALTRACK_SERVER_HTTP_PORT", "9292")
	t.Setenv("GOALTRACK_NOTIFY_MAX_MESSAGE_LEN", "80")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9292, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "s3cret", cfg.Server.CronSecret.Value())
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 30.0, cfg.LLM.RequestsPerMinute)
	assert.Equal(t, "Europe/Berlin", cfg.Notify.DefaultTimezone)
	assert.Equal(t, 80, cfg.Notify.MaxMessageLen)
	assert.Equal(t, SchedulerTemporal, cfg.Scheduler.Mode)
}

func TestLoadWithFile_Rejects(t *testing.T) {
	t.Run("outside allowed dirs", func(t *testing.T) {
		setupTestHome(t)
		_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config path validation failed")
	})

	t.Run("sibling prefix directory", func(t *testing.T) {
		setupTestHome(t)
		assert.Error(t, validateConfigPath("/etc/goaltrack-evil/config.yaml"))
		assert.NoError(t, validateConfigPath("/etc/goaltrack/config.yaml"))
	})

	t.Run("world readable file", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission model differs")
		}
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "server:\n  http_port: 9000\n", 0644)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("llm key required", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "llm:\n  provider: anthropic\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm.api_key")
	})

	t.Run("bad timezone", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "notify:\n  default_timezone: Mars/Olympus\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_timezone")
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.http_port", envKey("GOALTRACK_SERVER_HTTP_PORT"))
	assert.Equal(t, "whatsapp.account_sid", envKey("GOALTRACK_WHATSAPP_ACCOUNT_SID"))
	assert.Equal(t, "debug", envKey("GOALTRACK_DEBUG"))
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())

	b, err := json.Marshal(struct{ Key Secret }{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(b))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Scheduler.Mode = "cron"
	assert.ErrorContains(t, cfg.Validate(), "unknown scheduler mode")

	cfg = Default()
	cfg.Auth.Provider = "hosted"
	assert.ErrorContains(t, cfg.Validate(), "auth.base_url")

	cfg = Default()
	cfg.WhatsApp.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "whatsapp")
}
