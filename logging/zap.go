// Package logging adapts zap to the ledger.Logger interface.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AshkanYarmoradi/go-ledger"
)

// Zap is a ledger.Logger backed by a zap SugaredLogger.
type Zap struct {
	sugar *zap.SugaredLogger
}

var _ ledger.Logger = (*Zap)(nil)

// New wraps an existing zap logger.
func New(l *zap.Logger) *Zap {
	return &Zap{sugar: l.Sugar()}
}

// ParseLevel maps a level name to a zap level. Unknown names select info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// NewZap builds a logger writing to stderr. format is "json" or "console".
func NewZap(level, format string) (*Zap, error) {
	encoding := "json"
	encoder := zap.NewProductionEncoderConfig()
	if format == "console" {
		encoding = "console"
		encoder = zap.NewDevelopmentEncoderConfig()
	}
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    encoder,
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ledger/logging: failed to build logger: %w", err)
	}
	return New(l), nil
}

func (z *Zap) Debug(msg string, args ...interface{}) { z.sugar.Debugw(msg, args...) }
func (z *Zap) Info(msg string, args ...interface{})  { z.sugar.Infow(msg, args...) }
func (z *Zap) Warn(msg string, args ...interface{})  { z.sugar.Warnw(msg, args...) }
func (z *Zap) Error(msg string, args ...interface{}) { z.sugar.Errorw(msg, args...) }

// With returns a logger that adds args to every entry.
func (z *Zap) With(args ...interface{}) *Zap {
	return &Zap{sugar: z.sugar.With(args...)}
}

// Sync flushes buffered entries.
func (z *Zap) Sync() error {
	return z.sugar.Sync()
}
