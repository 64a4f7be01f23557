// Package obs wires up structured logging with go.uber.org/zap, the
// logging library the pack's own services (balinomad-go-unilog,
// DataDog-datadog-agent, sarchlab-zeonica) build their observability on,
// in place of the teacher compiler's plain stderr prints (it's a
// batch compiler, not a long-running process that needs leveled logs).
package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap.Logger at the given level ("debug", "info",
// "warn", "error"); an unrecognized level falls back to info.
func NewLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}
