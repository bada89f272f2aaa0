package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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
		return "?"
	}
}

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgHiCyan),
	LevelWarn:  color.New(color.FgHiYellow),
	LevelError: color.New(color.FgHiRed, color.Bold),
}

// Logger provides leveled, optionally structured logging.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	// With returns a Logger that prepends keyvals to every entry.
	With(keyvals ...interface{}) Logger
}

// Config configures the logger.
type Config struct {
	Level  Level
	Format string // "text" or "json"
	Output io.Writer
	// Color enables colored level tags in text format. Ignored for json.
	Color bool
}

// sink is shared by a logger and all loggers derived from it with With.
type sink struct {
	cfg Config
	mu  sync.Mutex
	now func() time.Time
}

type loggerImpl struct {
	sink    *sink
	context []interface{}
}

// New creates a Logger from config. Output defaults to os.Stderr if nil.
func New(cfg Config) Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Format != "json" {
		cfg.Format = "text"
	}
	return &loggerImpl{sink: &sink{cfg: cfg, now: time.Now}}
}

func (l *loggerImpl) Debug(msg string, keyvals ...interface{}) { l.log(LevelDebug, msg, keyvals) }
func (l *loggerImpl) Info(msg string, keyvals ...interface{})  { l.log(LevelInfo, msg, keyvals) }
func (l *loggerImpl) Warn(msg string, keyvals ...interface{})  { l.log(LevelWarn, msg, keyvals) }
func (l *loggerImpl) Error(msg string, keyvals ...interface{}) { l.log(LevelError, msg, keyvals) }

func (l *loggerImpl) With(keyvals ...interface{}) Logger {
	ctx := make([]interface{}, 0, len(l.context)+len(keyvals))
	ctx = append(ctx, l.context...)
	ctx = append(ctx, keyvals...)
	return &loggerImpl{sink: l.sink, context: ctx}
}

func (l *loggerImpl) log(level Level, msg string, keyvals []interface{}) {
	if level < l.sink.cfg.Level {
		return
	}
	all := keyvals
	if len(l.context) > 0 {
		all = append(append([]interface{}{}, l.context...), keyvals...)
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.cfg.Format == "json" {
		l.sink.writeJSON(level, msg, all)
	} else {
		l.sink.writeText(level, msg, all)
	}
}

func (s *sink) writeText(level Level, msg string, keyvals []interface{}) {
	var b strings.Builder
	tag := level.String()
	if s.cfg.Color {
		tag = levelColors[level].Sprint(tag)
	}
	fmt.Fprintf(&b, "%s %s %s", s.now().Format(time.RFC3339), tag, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(s.cfg.Output, b.String())
}

func (s *sink) writeJSON(level Level, msg string, keyvals []interface{}) {
	m := map[string]interface{}{
		"time":  s.now().Format(time.RFC3339),
		"level": level.String(),
		"msg":   msg,
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		// errors marshal to {} otherwise
		if err, isErr := keyvals[i+1].(error); isErr {
			m[k] = err.Error()
			continue
		}
		m[k] = keyvals[i+1]
	}
	enc := json.NewEncoder(s.cfg.Output)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(m)
}

// ParseLevel returns Level from string (debug, info, warn, error). Defaults to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
