// Package log provides structured logging for reentry using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with harness-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// Get returns the global logger, or a no-op logger before Init.
func Get() *Logger {
	if L == nil {
		return NewNop()
	}
	return L
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	// Shorter timestamps in development
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named returns a child logger with a component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// RunStart logs the start of a bounded run.
func (l *Logger) RunStart(depth int, begin, until uint64) {
	l.Debug("run start", Depth(depth), Ptr("begin", begin), Ptr("until", until))
}

// RunEnd logs the end of a bounded run, at warn level when it failed.
func (l *Logger) RunEnd(depth int, begin, until uint64, err error) {
	if err != nil {
		l.Warn("run failed", Depth(depth), Ptr("begin", begin), Ptr("until", until), zap.Error(err))
		return
	}
	l.Debug("run end", Depth(depth), Ptr("begin", begin), Ptr("until", until))
}

// Hex formats a uint64 as hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Ptr creates a named address field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Depth creates a nesting depth field.
func Depth(depth int) zap.Field {
	return zap.Int("depth", depth)
}

// Reg creates a register name/value field.
func Reg(name string, val uint64) zap.Field {
	return zap.String(name, Hex(val))
}

// Session creates a session id field.
func Session(id string) zap.Field {
	return zap.String("session", id)
}
