package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix namespaces environment overrides.
	EnvPrefix = "GOALTRACK_"

	systemConfigDir = "/etc/goaltrack"
)

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables, applies defaults and validates.
//
// Precedence (highest first):
//  1. Environment variables (GOALTRACK_SERVER_HTTP_PORT, GOALTRACK_LLM_API_KEY, ...)
//  2. YAML config file (~/.config/goaltrack/config.yaml by default)
//  3. Defaults
//
// The file must live under ~/.config/goaltrack/ or /etc/goaltrack/, have
// 0600 or 0400 permissions and be at most 1MB. A missing file is not an
// error.
//
// Environment names drop the prefix and split on the first underscore:
//
//	GOALTRACK_SERVER_HTTP_PORT -> server.http_port
//	GOALTRACK_NOTIFY_DEFAULT_TIMEZONE -> notify.default_timezone
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		dir, err := UserConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps GOALTRACK_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile opens the file once and validates it through the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// UserConfigDir returns ~/.config/goaltrack.
func UserConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "goaltrack"), nil
}

// validateConfigPath checks that path resolves inside an allowed directory.
// It runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	userDir, err := UserConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{userDir, systemConfigDir} {
		if resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/goaltrack/ or %s/", systemConfigDir)
}

// validateConfigFileProperties checks permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Store.Path == "" {
		if dir, err := UserConfigDir(); err == nil {
			cfg.Store.Path = filepath.Join(dir, "goaltrack.db")
		} else {
			cfg.Store.Path = "goaltrack.db"
		}
	}

	if cfg.Auth.Provider == "" {
		cfg.Auth.Provider = "static"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = LLMProviderNone
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case LLMProviderAnthropic:
			cfg.LLM.Model = "claude-3-5-haiku-latest"
		default:
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
	if cfg.LLM.RequestsPerMinute == 0 {
		cfg.LLM.RequestsPerMinute = 50
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 5
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(30 * time.Second)
	}

	if cfg.Notify.DefaultTimezone == "" {
		cfg.Notify.DefaultTimezone = "UTC"
	}
	if cfg.Notify.Lookahead == 0 {
		cfg.Notify.Lookahead = Duration(5 * time.Minute)
	}
	if cfg.Notify.MaxMessageLen == 0 {
		cfg.Notify.MaxMessageLen = 100
	}
	if cfg.Notify.BatchSize == 0 {
		cfg.Notify.BatchSize = 500
	}

	if cfg.Push.BaseURL == "" {
		cfg.Push.BaseURL = "https://exp.host"
	}
	if cfg.Push.RatePerSec == 0 {
		cfg.Push.RatePerSec = 100
	}
	if cfg.Email.BaseURL == "" {
		cfg.Email.BaseURL = "https://api.resend.com"
	}
	if cfg.Email.RatePerSec == 0 {
		cfg.Email.RatePerSec = 2
	}
	if cfg.WhatsApp.BaseURL == "" {
		cfg.WhatsApp.BaseURL = "https://api.twilio.com"
	}
	if cfg.WhatsApp.RatePerSec == 0 {
		cfg.WhatsApp.RatePerSec = 1
	}

	if cfg.Scheduler.Mode == "" {
		cfg.Scheduler.Mode = SchedulerInProcess
	}
	if cfg.Scheduler.PlanInterval == 0 {
		cfg.Scheduler.PlanInterval = Duration(time.Hour)
	}
	if cfg.Scheduler.DispatchInterval == 0 {
		cfg.Scheduler.DispatchInterval = Duration(5 * time.Minute)
	}

	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "goaltrack-notifications"
	}
	if cfg.Temporal.PlanCron == "" {
		cfg.Temporal.PlanCron = "0 * * * *"
	}
	if cfg.Temporal.DispatchCron == "" {
		cfg.Temporal.DispatchCron = "*/5 * * * *"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "goaltrack"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "goaltrack"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
