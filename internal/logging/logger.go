// Package logging provides the structured logger the buffer pool and index
// use to report eviction, flush, and split events. It is a thin wrapper
// around zap so call sites never reference zap's constructors directly.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a development-friendly *zap.Logger: console-encoded, leveled
// at debug, safe to leave wired in permanently since callers control
// verbosity with normal zap level checks.
func New() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(zapcore.AddSync(os.Stderr)), zap.DebugLevel)
	return zap.New(core)
}

// Nop returns a logger that discards everything, for tests and callers
// that have no interest in engine diagnostics.
func Nop() *zap.Logger {
	return zap.NewNop()
}
