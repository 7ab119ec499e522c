package observability

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents log severity.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is a leveled logger with structured fields and trace context
// support.
type Logger struct {
	mu        sync.RWMutex
	stdLogger *log.Logger
	minLevel  LogLevel
	fields    map[string]interface{}
	service   string
}

var (
	defaultLogger *Logger
	loggerOnce    sync.Once
)

// NewLogger creates a new logger writing to stdout.
func NewLogger(service string, minLevel LogLevel) *Logger {
	return &Logger{
		stdLogger: log.New(os.Stdout, "", 0),
		minLevel:  minLevel,
		fields:    make(map[string]interface{}),
		service:   service,
	}
}

// GetLogger returns the process-wide default logger.
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		service := os.Getenv("SERVICE_NAME")
		if service == "" {
			service = "casilisto-sync"
		}

		level := LevelInfo
		switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
		case "debug":
			level = LevelDebug
		case "warn":
			level = LevelWarn
		case "error":
			level = LevelError
		}

		defaultLogger = NewLogger(service, level)
	})
	return defaultLogger
}

// SetOutput redirects log output, mostly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdLogger = log.New(w, "", 0)
}

// WithField returns a new logger with the field added.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with the fields added.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &Logger{
		stdLogger: l.stdLogger,
		minLevel:  l.minLevel,
		fields:    merged,
		service:   l.service,
	}
}

// WithContext returns a new logger carrying the span's trace ids when
// the context holds a recording span.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return l.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}
	return l
}

func (l *Logger) Debug(msg string) { l.emit(LevelDebug, msg) }
func (l *Logger) Info(msg string)  { l.emit(LevelInfo, msg) }
func (l *Logger) Warn(msg string)  { l.emit(LevelWarn, msg) }
func (l *Logger) Error(msg string) { l.emit(LevelError, msg) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.emit(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(LevelError, fmt.Sprintf(format, args...))
}

func (l *Logger) emit(level LogLevel, msg string) {
	if level < l.minLevel {
		return
	}

	_, file, line, _ := runtime.Caller(2)
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}

	l.mu.RLock()
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	l.mu.RUnlock()

	l.stdLogger.Printf("%s [%s] %s:%d %s%s",
		time.Now().Format("2006/01/02 15:04:05"),
		level.String(), file, line, msg, b.String())
}

// Package-level convenience functions using the default logger.

func Debugf(format string, args ...interface{}) { GetLogger().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { GetLogger().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { GetLogger().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetLogger().Errorf(format, args...) }

// WithContext returns the default logger with trace context attached.
func WithContext(ctx context.Context) *Logger {
	return GetLogger().WithContext(ctx)
}
