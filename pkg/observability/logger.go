package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// LogLevel is the minimum severity a Logger writes
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levels = [...]struct {
	name  string
	slog  slog.Level
	alias []string
}{
	DebugLevel: {"DEBUG", slog.LevelDebug, []string{"debug"}},
	InfoLevel:  {"INFO", slog.LevelInfo, []string{"info"}},
	WarnLevel:  {"WARN", slog.LevelWarn, []string{"warn", "warning"}},
	ErrorLevel: {"ERROR", slog.LevelError, []string{"error"}},
}

func (l LogLevel) valid() bool {
	return l >= DebugLevel && l <= ErrorLevel
}

func (l LogLevel) String() string {
	if !l.valid() {
		return levels[InfoLevel].name
	}
	return levels[l].name
}

func (l LogLevel) slogLevel() slog.Level {
	if !l.valid() {
		return slog.LevelInfo
	}
	return levels[l].slog
}

// ParseLogLevel maps a level name to a LogLevel. Unknown names yield InfoLevel.
func ParseLogLevel(level string) LogLevel {
	name := strings.ToLower(strings.TrimSpace(level))
	for l, def := range levels {
		for _, alias := range def.alias {
			if alias == name {
				return LogLevel(l)
			}
		}
	}
	return InfoLevel
}

// Logger writes JSON lines through slog. Derived loggers share the handler
// and add their fields to every line.
type Logger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewLogger creates a JSON logger writing to output, or stdout when nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{logger: slog.New(handler), level: level}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

// Level returns the minimum level l writes
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) with(args ...interface{}) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), level: l.level}
}

// WithField returns a logger that adds key to every line
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields returns a logger that adds fields to every line, in key order
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// WithError adds err as the "error" field; a nil err returns l unchanged
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) Debug(message string) { l.logger.Debug(message) }
func (l *Logger) Info(message string)  { l.logger.Info(message) }
func (l *Logger) Warn(message string)  { l.logger.Warn(message) }
func (l *Logger) Error(message string) { l.logger.Error(message) }

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID stores the request ID in ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID stored in ctx, or ""
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

// WithContext returns l annotated with the request ID and the active trace
// and span IDs carried by ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	return WithTraceContext(ctx, logger)
}
