// Package logger is the JSON field logger of the HTTP status server. Each
// entry is one line holding timestamp, level, message, caller and fields.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel accepts the names String produces, plus WARNING. Anything else
// is LevelInfo.
func ParseLevel(s string) Level {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		return LevelWarn
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i)
		}
	}
	return LevelInfo
}

// ─────────────────────────────────────────────────────────────────────────────
// Fields
// ─────────────────────────────────────────────────────────────────────────────

type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field  { return Field{key, value} }
func Int(key string, value int) Field { return Field{key, value} }
func Any(key string, value any) Field { return Field{key, value} }

// Duration is logged in time.Duration's text form.
func Duration(key string, d time.Duration) Field { return Field{key, d.String()} }

// Err logs err's message under "error"; nil logs null.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

const RequestIDKey = "request_id"

func StudentID(id string) Field   { return String("student_id", id) }
func ReportID(id string) Field    { return String("report_id", id) }
func Component(name string) Field { return String("component", name) }

// ─────────────────────────────────────────────────────────────────────────────
// Logger
// ─────────────────────────────────────────────────────────────────────────────

// LogEntry is the JSON shape of one line.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type Options struct {
	Output    io.Writer // stdout when nil
	Level     Level
	AddCaller bool
}

// Logger is safe for concurrent use; children made by With share the
// parent's writer and lock.
type Logger struct {
	out    *syncWriter
	opts   Options
	fields []Field
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Logger{out: &syncWriter{w: opts.Output}, opts: opts}
}

// Default logs INFO and above to stdout with callers.
func Default() *Logger {
	return New(Options{Level: LevelInfo, AddCaller: true})
}

func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.fields = append(append([]Field(nil), l.fields...), fields...)
	return &child
}

func (l *Logger) WithRequestID(id string) *Logger {
	return l.With(String(RequestIDKey, id))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []Field) {
	if level < l.opts.Level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
	}
	if l.opts.AddCaller {
		// 0 is write, 1 the level method, 2 its caller.
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	if len(l.fields)+len(fields) > 0 {
		entry.Fields = make(map[string]any, len(l.fields)+len(fields))
		for _, f := range append(l.fields[:len(l.fields):len(l.fields)], fields...) {
			entry.Fields[f.Key] = f.Value
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf("%s [%s] %s", entry.Timestamp, entry.Level, msg))
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = l.out.w.Write(append(line, '\n'))
}

// ─────────────────────────────────────────────────────────────────────────────
// Context
// ─────────────────────────────────────────────────────────────────────────────

type ctxKey struct{}

func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext falls back to Default when ctx carries no logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}
