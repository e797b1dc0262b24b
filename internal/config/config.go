// Package config loads goaltrack configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Config holds the complete goaltrack configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	Auth          AuthConfig          `koanf:"auth"`
	LLM           LLMConfig           `koanf:"llm"`
	Notify        NotifyConfig        `koanf:"notify"`
	Push          PushConfig          `koanf:"push"`
	Email         EmailConfig         `koanf:"email"`
	WhatsApp      WhatsAppConfig      `koanf:"whatsapp"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	NATS          NATSConfig          `koanf:"nats"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// CronSecret, when set, must be sent as X-Cron-Secret on cron routes.
	CronSecret  Secret   `koanf:"cron_secret"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	// Provider is "hosted" (remote auth API) or "static" (token map).
	Provider   string            `koanf:"provider"`
	BaseURL    string            `koanf:"base_url"`
	AnonKey    Secret            `koanf:"anon_key"`
	ServiceKey Secret            `koanf:"service_key"`
	Tokens     map[string]string `koanf:"tokens"`
}

// LLM providers.
const (
	LLMProviderNone      = "none"
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
)

// LLMConfig configures the text-generation backend.
type LLMConfig struct {
	Provider          string   `koanf:"provider"`
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	RequestsPerMinute float64  `koanf:"requests_per_minute"`
	Burst             int      `koanf:"burst"`
	Timeout           Duration `koanf:"timeout"`
}

// NotifyConfig tunes the notification pipeline.
type NotifyConfig struct {
	TemplatesPath   string   `koanf:"templates_path"`
	DefaultTimezone string   `koanf:"default_timezone"`
	Lookahead       Duration `koanf:"lookahead"`
	MaxMessageLen   int      `koanf:"max_message_len"`
	BatchSize       int      `koanf:"batch_size"`
}

// PushConfig configures the Expo push channel.
type PushConfig struct {
	Enabled     bool    `koanf:"enabled"`
	BaseURL     string  `koanf:"base_url"`
	AccessToken Secret  `koanf:"access_token"`
	RatePerSec  float64 `koanf:"rate_per_sec"`
}

// EmailConfig configures the Resend email channel.
type EmailConfig struct {
	Enabled    bool    `koanf:"enabled"`
	BaseURL    string  `koanf:"base_url"`
	APIKey     Secret  `koanf:"api_key"`
	From       string  `koanf:"from"`
	RatePerSec float64 `koanf:"rate_per_sec"`
}

// WhatsAppConfig configures the Twilio WhatsApp channel.
type WhatsAppConfig struct {
	Enabled    bool    `koanf:"enabled"`
	BaseURL    string  `koanf:"base_url"`
	AccountSID string  `koanf:"account_sid"`
	AuthToken  Secret  `koanf:"auth_token"`
	From       string  `koanf:"from"`
	RatePerSec float64 `koanf:"rate_per_sec"`
}

// Scheduler modes.
const (
	SchedulerOff       = "off"
	SchedulerInProcess = "inprocess"
	SchedulerTemporal  = "temporal"
)

// SchedulerConfig controls how periodic notification passes run.
type SchedulerConfig struct {
	Mode             string   `koanf:"mode"`
	PlanInterval     Duration `koanf:"plan_interval"`
	DispatchInterval Duration `koanf:"dispatch_interval"`
}

// TemporalConfig configures the Temporal client and worker.
type TemporalConfig struct {
	HostPort     string `koanf:"host_port"`
	Namespace    string `koanf:"namespace"`
	TaskQueue    string `koanf:"task_queue"`
	PlanCron     string `koanf:"plan_cron"`
	DispatchCron string `koanf:"dispatch_cron"`
}

// NATSConfig configures the event bus.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// LoggingConfig holds the logging knobs exposed through config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// OTEL also ships records through the OpenTelemetry log bridge.
	OTEL bool `koanf:"otel"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}

	switch c.Auth.Provider {
	case "hosted":
		if c.Auth.BaseURL == "" {
			return errors.New("auth.base_url is required for the hosted provider")
		}
	case "static":
	default:
		return fmt.Errorf("unknown auth provider %q", c.Auth.Provider)
	}

	switch c.LLM.Provider {
	case LLMProviderOpenAI, LLMProviderAnthropic:
		if !c.LLM.APIKey.IsSet() {
			return fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider)
		}
	case LLMProviderNone:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.RequestsPerMinute <= 0 {
		return errors.New("llm.requests_per_minute must be positive")
	}

	if _, err := time.LoadLocation(c.Notify.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid notify.default_timezone %q: %w", c.Notify.DefaultTimezone, err)
	}
	if c.Notify.MaxMessageLen <= 0 {
		return errors.New("notify.max_message_len must be positive")
	}

	if c.WhatsApp.Enabled && (c.WhatsApp.AccountSID == "" || !c.WhatsApp.AuthToken.IsSet()) {
		return errors.New("whatsapp.account_sid and whatsapp.auth_token are required when whatsapp is enabled")
	}
	if c.Email.Enabled && (!c.Email.APIKey.IsSet() || c.Email.From == "") {
		return errors.New("email.api_key and email.from are required when email is enabled")
	}

	switch c.Scheduler.Mode {
	case SchedulerOff, SchedulerTemporal:
	case SchedulerInProcess:
		if c.Scheduler.PlanInterval.Duration() <= 0 || c.Scheduler.DispatchInterval.Duration() <= 0 {
			return errors.New("scheduler intervals must be positive")
		}
	default:
		return fmt.Errorf("unknown scheduler mode %q", c.Scheduler.Mode)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	return nil
}
