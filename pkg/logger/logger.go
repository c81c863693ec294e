package logger

import (
	"context"
	"io"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}

type logrusLogger struct {
	logger *logrus.Logger
}

// getCallerFunctionName 获取调用者的函数名
func getCallerFunctionName() string {
	pc := make([]uintptr, 10)
	n := runtime.Callers(2, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		// 提取最后一个点之后的部分作为函数名
		parts := strings.Split(frame.Function, ".")
		name := parts[len(parts)-1]
		if !isLoggerFrame(frame.Function, name) {
			return name
		}
		if !more {
			return "unknown"
		}
	}
}

var loggerFuncs = map[string]bool{"log": true, "Warn": true, "Error": true, "Info": true, "Debug": true}

func isLoggerFrame(full, name string) bool {
	if !strings.Contains(full, "pkg/logger.") {
		return false
	}
	return loggerFuncs[name] || strings.Contains(full, "logrusLogger")
}

// entry 组装带 trace_id / run_id 的日志条目
func (l *logrusLogger) entry(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		ctx = context.Background()
	}
	e := l.logger.WithContext(ctx)
	if traceID := getTraceID(ctx); traceID != "" {
		e = e.WithField("trace_id", traceID)
	}
	if runID := getRunID(ctx); runID != "" {
		e = e.WithField("run_id", runID)
	}
	return e
}

func (l *logrusLogger) log(ctx context.Context, level logrus.Level, msg string, args []any) {
	args = append([]any{getCallerFunctionName()}, args...)
	l.entry(ctx).Logf(level, "[%s] "+msg, args...)
}

func (l *logrusLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.WarnLevel, msg, args)
}

func (l *logrusLogger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.ErrorLevel, msg, args)
}

func (l *logrusLogger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.InfoLevel, msg, args)
}

func (l *logrusLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.DebugLevel, msg, args)
}

var defaultLogger Logger = newLogrus(logrus.InfoLevel, nil)

type LoggerConfig struct {
	Level      string `json:"level,omitempty" toml:"level,omitempty"`
	File       string `json:"file,omitempty" toml:"file,omitempty"`
	MaxSize    int    `json:"max_size,omitempty" toml:"max_size,omitempty"`       // 单个日志文件最大大小(MB),默认100MB
	MaxBackups int    `json:"max_backups,omitempty" toml:"max_backups,omitempty"` // 保留的旧日志文件最大数量,默认3个
	MaxAge     int    `json:"max_age,omitempty" toml:"max_age,omitempty"`         // 保留旧日志文件的最大天数,默认7天
	Compress   bool   `json:"compress,omitempty" toml:"compress,omitempty"`       // 是否压缩旧日志,默认false
}

func newLogrus(level logrus.Level, out io.Writer) *logrusLogger {
	log := logrus.New()
	log.SetLevel(level)
	// 配置 JSON 格式,方便提取 trace_id
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if out != nil {
		log.SetOutput(out)
	}
	return &logrusLogger{logger: log}
}

func InitLogger(cfg *LoggerConfig) {
	if cfg == nil {
		cfg = &LoggerConfig{Level: "info"}
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	var out io.Writer
	if cfg.File != "" {
		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		maxAge := cfg.MaxAge
		if maxAge <= 0 {
			maxAge = 7
		}

		// 使用 lumberjack 实现日志轮转
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   cfg.Compress,
		}
	}

	defaultLogger = newLogrus(level, out)
}

// SetOutput 替换默认 logger 的输出,测试中用来捕获或丢弃日志
func SetOutput(w io.Writer) {
	if l, ok := defaultLogger.(*logrusLogger); ok {
		l.logger.SetOutput(w)
	}
}

func Warn(ctx context.Context, msg string, args ...any) {
	defaultLogger.Warn(ctx, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	defaultLogger.Error(ctx, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	defaultLogger.Info(ctx, msg, args...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	defaultLogger.Debug(ctx, msg, args...)
}

func GetDefaultLogger() Logger {
	return defaultLogger
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	runIDKey   contextKey = "run_id"
)

// WithTraceID 将 trace_id 添加到 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithRunID 将 campaign run 的 id 添加到 context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func getTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func getRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetTraceID 导出的获取 trace_id 函数
func GetTraceID(ctx context.Context) string {
	return getTraceID(ctx)
}

// GetRunID 获取 context 中的 run_id
func GetRunID(ctx context.Context) string {
	return getRunID(ctx)
}
