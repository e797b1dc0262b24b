package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with one sampler per configured level. Levels
// without a sampling entry, errors included, pass through untouched.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	cores := make([]zapcore.Core, 0, len(cfg.Levels)+1)
	sampled := make(map[zapcore.Level]bool, len(cfg.Levels))
	for lvl, rate := range cfg.Levels {
		sampled[lvl] = true
		only := &levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return l == lvl }}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick.Duration(), rate.Initial, rate.Thereafter))
	}
	cores = append(cores, &levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return !sampled[l] }})

	return zapcore.NewTee(cores...)
}

// levelFilterCore passes only entries whose level satisfies allow.
type levelFilterCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), allow: c.allow}
}
