// Package logging wraps zap with the correlation-ID convention the
// rest of this module uses to tie a log line back to one Request or
// one plugin load/reload, grounded on moby-moby's and rclone's use of
// go.uber.org/zap for structured daemon logging.
package logging

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.SugaredLogger with a correlation field that
// propagates through WithCorrelation.
type Logger struct {
	base *zap.SugaredLogger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Config selects level and output encoding.
type Config struct {
	Level      zapcore.Level
	Production bool // true selects JSON encoding, false human-readable console
}

// DefaultConfig returns Info-level, console-encoded logging, suitable
// for cmd/aio-demo's default run.
func DefaultConfig() Config { return Config{Level: zapcore.InfoLevel} }

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	var zcfg zap.Config
	if cfg.Production {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level)
	z, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{base: z.Sugar()}, nil
}

// Default returns the process-wide default logger, building one with
// DefaultConfig on first use.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{base: zap.NewNop().Sugar()}
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// WithCorrelation returns a child logger tagging every subsequent line
// with id, e.g. a Request pointer's address or a plugin reload count.
func (l *Logger) WithCorrelation(id string) *Logger {
	return &Logger{base: l.base.With("correlation_id", id)}
}

// NewCorrelationID mints a fresh correlation ID, e.g. for a submitted
// Request or a plugin compile/reload cycle.
func NewCorrelationID() string { return uuid.NewString() }

func (l *Logger) Debug(msg string, kv ...any) { l.base.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.base.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.base.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.base.Errorw(msg, kv...) }

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error { return l.base.Sync() }
