package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, cfg, logger.config)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format must be")

	cfg = NewDefaultConfig()
	cfg.Output.Stdout = false
	_, err = NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "trace", Format: "console"}, "notify-worker")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "notify-worker", cfg.Fields["service"])

	_, err = FromAppConfig(config.LoggingConfig{Level: "loud"}, "")
	assert.Error(t, err)
}

func TestNewLogger_OTELBridge(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{OTEL: true}, "goaltrackd")
	require.NoError(t, err)
	assert.True(t, cfg.Output.OTEL)
	assert.Equal(t, "github.com/fyrsmithlabs/goaltrack/goaltrackd", instrumentationScope(cfg))

	logger, err := NewLogger(cfg, lognoop.NewLoggerProvider())
	require.NoError(t, err)
	logger.Info(context.Background(), "bridged")

	cfg.Output.Stdout = false
	_, err = NewLogger(cfg, nil)
	assert.Error(t, err, "otel-only output needs a provider")
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithUserID(context.Background(), "user-1")
	ctx = WithGoalID(ctx, "goal-9")
	ctx = WithRequestID(ctx, "req-abc")
	tl.Info(ctx, "goal saved", zap.Int("xp", 3))

	tl.AssertLogged(t, zapcore.InfoLevel, "goal saved")
	tl.AssertField(t, "goal saved", "user.id", "user-1")
	tl.AssertField(t, "goal saved", "goal.id", "goal-9")
	tl.AssertField(t, "goal saved", "request.id", "req-abc")
}

func TestLogger_TraceCorrelation(t *testing.T) {
	tl := NewTestLogger()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tl.Warn(ctx, "slow dispatch")
	tl.AssertTraceCorrelation(t, "slow dispatch")
	tl.AssertField(t, "slow dispatch", "trace_sampled", true)
}

func TestContext_RejectsMalformedIDs(t *testing.T) {
	ctx := WithUserID(context.Background(), "bad id\nINJECTED")
	assert.Empty(t, UserIDFromContext(ctx))

	ctx = WithGoalID(context.Background(), "")
	assert.Empty(t, GoalIDFromContext(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "from context")
	tl.AssertLogged(t, zapcore.InfoLevel, "from context")
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)
}

func newBufferedLogger(t *testing.T, cfg *Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	enc, err := NewRedactingEncoder(newEncoder("json"), cfg.Redaction)
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), TraceLevel)
	return &Logger{zap: zap.New(core), config: cfg}, buf
}

func TestRedactingEncoder(t *testing.T) {
	logger, buf := newBufferedLogger(t, NewDefaultConfig())
	ctx := context.Background()

	logger.Info(ctx, "registered device",
		zap.String("push_token", "ExponentPushToken[abc123]"),
		zap.String("phone_number", "+15551234567"),
		zap.String("note", "header was Bearer abc.def.ghi"),
		zap.Error(errors.New("push to ExponentPushToken[zzz] failed")),
	)

	out := buf.String()
	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "5551234567")
	assert.NotContains(t, out, "abc.def.ghi")
	assert.NotContains(t, out, "zzz")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	logger, buf := newBufferedLogger(t, NewDefaultConfig())
	logger.With(zap.String("token", "raw-token")).Info(context.Background(), "child")
	assert.NotContains(t, buf.String(), "raw-token")
}

func TestRedactionHelpers(t *testing.T) {
	f := Secret("api_key", config.Secret("sk-123456"))
	assert.Equal(t, "[REDACTED:9]", f.String)

	f = MaskPhone("phone", "+15551234567")
	assert.Equal(t, "**********67", f.String)
}

func TestTestLogger_AssertNoSecrets(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "sent", RedactedString("token", "abc"), zap.String("channel", "push"))
	tl.AssertNoSecrets(t)
}

func TestTestLogger_Reset(t *testing.T) {
	tl := NewTestLogger()
	tl.Warn(context.Background(), "template reload failed")
	tl.AssertLogged(t, zapcore.WarnLevel, "reload failed")

	tl.Reset()
	tl.AssertNotLogged(t, zapcore.WarnLevel, "reload failed")
	assert.Zero(t, tl.FilterMessage("template reload failed").Len())
}

func TestSampling_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 2, Thereafter: 0},
		},
	})
	logger := zap.New(sampled)

	for i := 0; i < 10; i++ {
		logger.Info("tick")
		logger.Error("boom")
	}

	assert.Equal(t, 2, observed.FilterMessage("tick").Len())
	assert.Equal(t, 10, observed.FilterMessage("boom").Len())
}

func TestSampling_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}
