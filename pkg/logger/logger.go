// Package logger is a thin zerolog wrapper with typed fields and an optional
// collector that ships aggregated warnings and errors to Kafka.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

type Config struct {
	Level      string // zerolog level name
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string
	Service    string // stamped on every entry as "service"
}

// callerSkip accounts for the public method and emit sitting between the
// caller and zerolog.
const callerSkip = 4

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: cfg.TimeFormat}
	}

	zc := zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(callerSkip)
	if cfg.Service != "" {
		zc = zc.Str("service", cfg.Service)
	}
	return &Logger{zl: zc.Logger()}, nil
}

func openOutput(dest string) (io.Writer, error) {
	switch dest {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// NewNop discards every entry. The collector still works.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child that stamps fields on every entry and shares the
// parent's collector.
func (l *Logger) With(fields ...Field) *Logger {
	zc := l.zl.With()
	for _, f := range fields {
		zc = zc.Interface(f.Key, f.value())
	}
	return &Logger{zl: zc.Logger(), collector: l.collector}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), "", msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), "", msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), "warn", msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), "error", msg, fields) }

// emit writes the entry and, for collectable levels, hands it to the
// collector.
func (l *Logger) emit(ev *zerolog.Event, level, msg string, fields []Field) {
	for _, f := range fields {
		f.addTo(ev)
	}
	ev.Msg(msg)

	if level == "" || l.collector == nil || !l.collector.Accepts(level) {
		return
	}
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(3); ok {
		caller = fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	}
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.value()
	}
	l.collector.AddLog(level, msg, m, caller)
}

// AddCollector starts aggregating warn/error entries, replacing any existing
// collector. Children created afterwards share it.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(cfg)
}

// RemoveCollector flushes and stops the collector.
func (l *Logger) RemoveCollector() {
	if l.collector == nil {
		return
	}
	l.collector.Close()
	l.collector = nil
}

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt
	kindBool
	kindError
	kindAny
)

// Field is one structured key/value pair. Build it with the constructors.
type Field struct {
	Key  string
	kind fieldKind
	str  string
	num  int64
	err  error
	obj  interface{}
}

func (f Field) addTo(ev *zerolog.Event) {
	switch f.kind {
	case kindString:
		ev.Str(f.Key, f.str)
	case kindInt:
		ev.Int64(f.Key, f.num)
	case kindBool:
		ev.Bool(f.Key, f.num != 0)
	case kindError:
		ev.AnErr(f.Key, f.err)
	default:
		ev.Interface(f.Key, f.obj)
	}
}

// value is the JSON-friendly form used for child context and the collector.
func (f Field) value() interface{} {
	switch f.kind {
	case kindString:
		return f.str
	case kindInt:
		return f.num
	case kindBool:
		return f.num != 0
	case kindError:
		if f.err == nil {
			return nil
		}
		return f.err.Error()
	default:
		return f.obj
	}
}

func String(key, v string) Field          { return Field{Key: key, kind: kindString, str: v} }
func Int(key string, v int) Field         { return Field{Key: key, kind: kindInt, num: int64(v)} }
func Int64(key string, v int64) Field     { return Field{Key: key, kind: kindInt, num: v} }
func Any(key string, v interface{}) Field { return Field{Key: key, kind: kindAny, obj: v} }

func Bool(key string, v bool) Field {
	f := Field{Key: key, kind: kindBool}
	if v {
		f.num = 1
	}
	return f
}

// Error logs err under "error". A nil err is omitted from the entry.
func Error(err error) Field { return Field{Key: "error", kind: kindError, err: err} }

// Duration logs d in whole milliseconds.
func Duration(key string, d time.Duration) Field { return Int64(key, d.Milliseconds()) }
