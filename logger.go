package mqttbus

import (
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
)

// LogLevel orders log entries by severity. A logger emits entries at or
// above its level; LogLevelNone silences it.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelNone
)

// String returns the upper-case level name used in log lines.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a level name such as "debug" or "WARN".
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off":
		return LogLevelNone, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LogFields holds structured context attached to a log entry.
// Keys are usually one of the LogField constants.
type LogFields map[string]any

// Logger is the structured logger used by the dispatcher and the
// extensions. Fields passed to a call are merged over the fields bound
// with WithFields.
type Logger interface {
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, fields LogFields)

	// WithFields returns a child logger; the receiver is unchanged.
	WithFields(fields LogFields) Logger

	Level() LogLevel
	SetLevel(level LogLevel)
}

// NoOpLogger discards everything. It is the default logger.
type NoOpLogger struct {
	level LogLevel
}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{level: LogLevelNone}
}

func (n *NoOpLogger) Debug(_ string, _ LogFields)   {}
func (n *NoOpLogger) Info(_ string, _ LogFields)    {}
func (n *NoOpLogger) Warn(_ string, _ LogFields)    {}
func (n *NoOpLogger) Error(_ string, _ LogFields)   {}
func (n *NoOpLogger) WithFields(_ LogFields) Logger { return n }
func (n *NoOpLogger) Level() LogLevel               { return n.level }
func (n *NoOpLogger) SetLevel(level LogLevel)       { n.level = level }

// StdLogger writes one line per entry through the standard log package:
//
//	2026/01/02 15:04:05 [WARN] subscriber failed to handle message error=boom topic=a/b
//
// Fields are printed as key=value pairs sorted by key.
type StdLogger struct {
	logger *log.Logger
	level  LogLevel
	fields LogFields
}

// NewStdLogger creates a logger writing to w, or to stderr when w is nil.
func NewStdLogger(w io.Writer, level LogLevel) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
	}
}

func (s *StdLogger) Debug(msg string, fields LogFields) { s.logAt(LogLevelDebug, msg, fields) }
func (s *StdLogger) Info(msg string, fields LogFields)  { s.logAt(LogLevelInfo, msg, fields) }
func (s *StdLogger) Warn(msg string, fields LogFields)  { s.logAt(LogLevelWarn, msg, fields) }
func (s *StdLogger) Error(msg string, fields LogFields) { s.logAt(LogLevelError, msg, fields) }

// WithFields returns a child logger that adds fields to every entry.
// The parent is not modified.
func (s *StdLogger) WithFields(fields LogFields) Logger {
	merged := maps.Clone(s.fields)
	if merged == nil {
		merged = make(LogFields, len(fields))
	}
	maps.Copy(merged, fields)

	return &StdLogger{logger: s.logger, level: s.level, fields: merged}
}

// Level returns the current log level.
func (s *StdLogger) Level() LogLevel {
	return s.level
}

// SetLevel sets the log level.
func (s *StdLogger) SetLevel(level LogLevel) {
	s.level = level
}

func (s *StdLogger) logAt(level LogLevel, msg string, fields LogFields) {
	if level < s.level {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)

	all := s.fields
	if len(fields) > 0 {
		all = maps.Clone(s.fields)
		if all == nil {
			all = make(LogFields, len(fields))
		}
		maps.Copy(all, fields)
	}
	for _, k := range slices.Sorted(maps.Keys(all)) {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}

	s.logger.Print(b.String())
}

// Field names shared by every log line the package writes.
const (
	LogFieldSubscriberID = "subscriber_id"
	LogFieldClientID     = "client_id"
	LogFieldTopic        = "topic"
	LogFieldFilter       = "filter"
	LogFieldPacketType   = "packet_type"
	LogFieldError        = "error"
	LogFieldRemoteAddr   = "remote_addr"
	LogFieldBytes        = "bytes"

	// LogFieldPanic carries the value recovered from a panicking handler.
	LogFieldPanic = "panic"
)
