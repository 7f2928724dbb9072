package mqttbus

import (
	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a logrus logger to the Logger interface.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l. A nil l uses the logrus standard logger.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// Debug logs a debug message.
func (l *LogrusLogger) Debug(msg string, fields LogFields) {
	l.withFields(fields).Debug(msg)
}

// Info logs an info message.
func (l *LogrusLogger) Info(msg string, fields LogFields) {
	l.withFields(fields).Info(msg)
}

// Warn logs a warning message.
func (l *LogrusLogger) Warn(msg string, fields LogFields) {
	l.withFields(fields).Warn(msg)
}

// Error logs an error message.
func (l *LogrusLogger) Error(msg string, fields LogFields) {
	l.withFields(fields).Error(msg)
}

// WithFields returns a new logger with the given fields added.
func (l *LogrusLogger) WithFields(fields LogFields) Logger {
	return &LogrusLogger{entry: l.withFields(fields)}
}

// Level returns the current log level.
func (l *LogrusLogger) Level() LogLevel {
	switch l.entry.Logger.GetLevel() {
	case logrus.TraceLevel, logrus.DebugLevel:
		return LogLevelDebug
	case logrus.InfoLevel:
		return LogLevelInfo
	case logrus.WarnLevel:
		return LogLevelWarn
	case logrus.PanicLevel:
		return LogLevelNone
	default:
		return LogLevelError
	}
}

// SetLevel sets the log level of the underlying logrus logger.
// LogLevelNone maps to logrus.PanicLevel, the quietest level logrus offers.
func (l *LogrusLogger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	case LogLevelInfo:
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	case LogLevelWarn:
		l.entry.Logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		l.entry.Logger.SetLevel(logrus.ErrorLevel)
	default:
		l.entry.Logger.SetLevel(logrus.PanicLevel)
	}
}

func (l *LogrusLogger) withFields(fields LogFields) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(fields))
}
