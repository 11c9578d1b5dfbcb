package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 日志接口
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Warn(format string, args ...interface{})
}

// ZapLogger 基于 zap 的日志实现
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New 创建日志器，debug 为 true 时输出开发格式和 Debug 级别
func New(debug bool) (*ZapLogger, error) {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config = zap.NewProductionConfig()
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &ZapLogger{sugar: l.Sugar()}, nil
}

// Wrap 包装已有的 zap.Logger
func Wrap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.Sugar()}
}

// Nop 不输出任何内容，用于测试
func Nop() *ZapLogger {
	return Wrap(zap.NewNop())
}

// With 附加结构化字段
func (zl *ZapLogger) With(keysAndValues ...interface{}) *ZapLogger {
	return &ZapLogger{sugar: zl.sugar.With(keysAndValues...)}
}

func (zl *ZapLogger) Info(format string, args ...interface{}) {
	zl.sugar.Infof(format, args...)
}

func (zl *ZapLogger) Error(format string, args ...interface{}) {
	zl.sugar.Errorf(format, args...)
}

func (zl *ZapLogger) Debug(format string, args ...interface{}) {
	zl.sugar.Debugf(format, args...)
}

func (zl *ZapLogger) Warn(format string, args ...interface{}) {
	zl.sugar.Warnf(format, args...)
}

// Sync 刷新缓冲
func (zl *ZapLogger) Sync() {
	_ = zl.sugar.Sync()
}
