package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type BaseLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger builds a zap backed logger. mode "prod" emits JSON, anything else the console encoder.
func NewLogger(mode, level string) (*BaseLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl := zap.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, err
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &BaseLogger{sugar: zl.Sugar()}, nil
}

// NewNop discards everything. Used by tests and as a nil-safe default.
func NewNop() *BaseLogger {
	return &BaseLogger{sugar: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, e.g. one built over an observer core in tests.
func FromZap(zl *zap.Logger) *BaseLogger {
	return &BaseLogger{sugar: zl.Sugar()}
}

func (l *BaseLogger) Sync() {
	_ = l.sugar.Sync()
}

func (l *BaseLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, redact(keysAndValues)...)
}

func (l *BaseLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, redact(keysAndValues)...)
}

func (l *BaseLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, redact(keysAndValues)...)
}

func (l *BaseLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, redact(keysAndValues)...)
}

func (l *BaseLogger) With(keysAndValues ...interface{}) Logger {
	return &BaseLogger{sugar: l.sugar.With(redact(keysAndValues)...)}
}

func (l *BaseLogger) WithPrefix(prefix string) Logger {
	return &BaseLogger{sugar: l.sugar.Named(prefix)}
}

func redact(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if isSecretKey(strings.ToLower(key)) {
			out[i+1] = "[REDACTED]"
		}
	}
	return out
}

func isSecretKey(key string) bool {
	switch {
	case strings.Contains(key, "token"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "masterkey"),
		strings.Contains(key, "master_key"),
		strings.Contains(key, "api_key"):
		return true
	default:
		return false
	}
}
