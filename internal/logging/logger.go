package logging

import (
	"context"
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type Logger struct {
	*otelzap.Logger
	auditEnabled bool
}

// LoggerWithCtx carries a context so log records attach to the active span.
type LoggerWithCtx struct {
	otelzap.LoggerWithCtx
	auditEnabled bool
}

type LoggerOption struct {
	LogLevel string
	AuditLog bool
}

type Option func(o *LoggerOption)

func WithLogLevel(logLevel string) Option {
	return func(o *LoggerOption) {
		o.LogLevel = logLevel
	}
}

func WithAuditLog(enabled bool) Option {
	return func(o *LoggerOption) {
		o.AuditLog = enabled
	}
}

func NewLogger(opts ...Option) (*Logger, error) {
	option := &LoggerOption{}
	for _, opt := range opts {
		opt(option)
	}

	logger, err := makeLogger(option.LogLevel)
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger, auditEnabled: option.AuditLog}, nil
}

// NewNop returns a logger that discards everything. Test helper.
func NewNop() *Logger {
	return &Logger{Logger: otelzap.New(zap.NewNop())}
}

func (l *Logger) Ctx(ctx context.Context) LoggerWithCtx {
	return LoggerWithCtx{LoggerWithCtx: l.Logger.Ctx(ctx), auditEnabled: l.auditEnabled}
}

// Audit records an operator-facing audit entry. Audit entries are emitted at
// info level with an audit marker and are dropped entirely when audit logging
// is disabled.
func (l *Logger) Audit(msg string, fields ...zap.Field) {
	if !l.auditEnabled {
		return
	}
	l.Info(msg, append(fields, zap.Bool("audit", true))...)
}

func (l LoggerWithCtx) Audit(msg string, fields ...zap.Field) {
	if !l.auditEnabled {
		return
	}
	l.Info(msg, append(fields, zap.Bool("audit", true))...)
}

func makeLogger(logLevel string) (*otelzap.Logger, error) {
	level := zap.InfoLevel
	switch strings.ToLower(logLevel) {
	case "debug":
		level = zap.DebugLevel
	case "info":
		level = zap.InfoLevel
	case "warn":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	case "fatal":
		level = zap.FatalLevel
	default:
		level = zap.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return otelzap.New(zapLogger,
		otelzap.WithMinLevel(level),
	), nil
}
