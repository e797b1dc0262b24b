package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider(), "no log bridge while disabled")

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
	assert.Empty(t, health.Reasons)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"local insecure ok", func(c *Config) {}, ""},
		{"ipv6 loopback", func(c *Config) { c.Endpoint = "[::1]:4317" }, ""},
		{"http scheme local", func(c *Config) { c.Protocol = ProtocolHTTP; c.Endpoint = "http://127.0.0.1:4318" }, ""},
		{"remote insecure", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure export"},
		{"remote tls", func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }, "protocol must be"},
		{"bad rate", func(c *Config) { c.SamplingRate = 1.5 }, "sampling_rate"},
		{"no service", func(c *Config) { c.ServiceName = "" }, "service_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "notify-worker",
		Endpoint:        "localhost:4318",
		Protocol:        ProtocolHTTP,
		Insecure:        true,
		SamplingRate:    0.25,
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "notify-worker", cfg.ServiceName)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, 0.25, cfg.SamplingRate)
	assert.NoError(t, cfg.Validate())
}

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()
	res := newResource(cfg)

	v, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "goaltrack", v.AsString())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTestTelemetry_SpansAndCounters(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "notify.plan")
	span.SetAttributes(attribute.Int64("scheduled", 3))
	span.End()

	counter, err := tt.Meter("test").Int64Counter("goaltrack.test.count")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttrs("push"))
	counter.Add(ctx, 1, metricAttrs("email"))

	tt.AssertSpanExists(t, "notify.plan")
	tt.AssertSpanAttribute(t, "notify.plan", "scheduled", int64(3))
	assert.Equal(t, int64(3), tt.CounterValue(t, "goaltrack.test.count"))
	assert.Equal(t, int64(2), tt.CounterValue(t, "goaltrack.test.count", attribute.String("channel", "push")))
}

func metricAttrs(channel string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("channel", channel))
}
