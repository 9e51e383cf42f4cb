// Package diag is msh's ambient diagnostics sink. It exists purely for
// operational observability: none of its output ever reaches the
// shell's own stdout/stderr, which must stay byte-exact for the REPL
// contract. By default it is a no-op, mirroring the teacher pipeline
// library's emptyEventHandler.
package diag

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event mirrors the teacher pipeline library's Event shape: a
// command/stage label, a short message, an optional error, and free-
// form structured context.
type Event struct {
	Command string
	Msg     string
	Err     error
	Context map[string]any
}

// Sink records Events. The zero value is usable and discards
// everything.
type Sink struct {
	logger *zap.Logger
}

// NewNop returns a Sink that discards every Event.
func NewNop() *Sink {
	return &Sink{logger: zap.NewNop()}
}

// NewFile returns a Sink that appends JSON-encoded Events to path. The
// level string is one of zapcore's level names ("debug", "info",
// "warn", "error"); an unrecognized or empty level defaults to "info".
func NewFile(path string, level string) (*Sink, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Sink{logger: logger}, nil
}

// Record emits e. A nil Sink is valid and discards e, so callers that
// haven't wired a Sink don't need a nil check.
func (s *Sink) Record(e Event) {
	if s == nil || s.logger == nil {
		return
	}

	fields := make([]zap.Field, 0, len(e.Context)+2)
	fields = append(fields, zap.String("command", e.Command))
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	for k, v := range e.Context {
		fields = append(fields, zap.Any(k, v))
	}

	if e.Err != nil {
		s.logger.Error(e.Msg, fields...)
	} else {
		s.logger.Info(e.Msg, fields...)
	}
}

// Sync flushes any buffered log entries.
func (s *Sink) Sync() error {
	if s == nil || s.logger == nil {
		return nil
	}
	return s.logger.Sync()
}
