package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferCore tees every log event into the ring buffer so the diagnostics
// route can serve recent history without touching files.
type bufferCore struct {
	zapcore.LevelEnabler
	buf *Buffer
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	return c
}

func (c *bufferCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bufferCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	source := ent.LoggerName
	if source == "" {
		source = "app"
	}
	c.buf.Append(ent.Level.CapitalString(), source, ent.Message)
	return nil
}

func (c *bufferCore) Sync() error {
	return nil
}

// New builds the process logger: production JSON output on stderr plus
// capture into buf. Component loggers are derived with Named.
func New(level string, buf *Buffer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, &bufferCore{LevelEnabler: lvl, buf: buf})
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}
