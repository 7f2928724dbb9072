package mqttbus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	t.Run("string representation", func(t *testing.T) {
		assert.Equal(t, "DEBUG", LogLevelDebug.String())
		assert.Equal(t, "INFO", LogLevelInfo.String())
		assert.Equal(t, "WARN", LogLevelWarn.String())
		assert.Equal(t, "ERROR", LogLevelError.String())
		assert.Equal(t, "NONE", LogLevelNone.String())
		assert.Equal(t, "UNKNOWN", LogLevel(99).String())
	})

	t.Run("level ordering", func(t *testing.T) {
		assert.True(t, LogLevelDebug < LogLevelInfo)
		assert.True(t, LogLevelInfo < LogLevelWarn)
		assert.True(t, LogLevelWarn < LogLevelError)
		assert.True(t, LogLevelError < LogLevelNone)
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"DEBUG", LogLevelDebug, false},
		{"", LogLevelInfo, false},
		{"info", LogLevelInfo, false},
		{" Warn ", LogLevelWarn, false},
		{"warning", LogLevelWarn, false},
		{"error", LogLevelError, false},
		{"off", LogLevelNone, false},
		{"none", LogLevelNone, false},
		{"verbose", LogLevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()

	t.Run("all methods are no-ops", func(_ *testing.T) {
		logger.Debug("test", nil)
		logger.Info("test", nil)
		logger.Warn("test", nil)
		logger.Error("test", nil)
	})

	t.Run("with fields returns same logger", func(t *testing.T) {
		newLogger := logger.WithFields(LogFields{"key": "value"})
		assert.Equal(t, logger, newLogger)
	})

	t.Run("level operations", func(t *testing.T) {
		assert.Equal(t, LogLevelNone, logger.Level())

		logger.SetLevel(LogLevelDebug)
		assert.Equal(t, LogLevelDebug, logger.Level())
	})
}

func TestStdLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   LogLevel
		visible []string
		hidden  []string
	}{
		{
			name:    "debug logs all",
			level:   LogLevelDebug,
			visible: []string{"[DEBUG] debug message", "[INFO] info message", "[WARN] warn message", "[ERROR] error message"},
		},
		{
			name:    "info skips debug",
			level:   LogLevelInfo,
			visible: []string{"info message", "warn message", "error message"},
			hidden:  []string{"debug message"},
		},
		{
			name:    "warn skips debug and info",
			level:   LogLevelWarn,
			visible: []string{"warn message", "error message"},
			hidden:  []string{"debug message", "info message"},
		},
		{
			name:    "error only",
			level:   LogLevelError,
			visible: []string{"error message"},
			hidden:  []string{"debug message", "info message", "warn message"},
		},
		{
			name:   "none logs nothing",
			level:  LogLevelNone,
			hidden: []string{"debug message", "info message", "warn message", "error message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := NewStdLogger(buf, tt.level)

			logger.Debug("debug message", nil)
			logger.Info("info message", nil)
			logger.Warn("warn message", nil)
			logger.Error("error message", nil)

			output := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, output, s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, output, s)
			}
		})
	}
}

func TestStdLoggerFields(t *testing.T) {
	t.Run("logs with fields", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelDebug)

		logger.Info("message", LogFields{
			LogFieldTopic: "sensors/kitchen",
			LogFieldBytes: 42,
		})

		output := buf.String()
		assert.Contains(t, output, "message")
		assert.Contains(t, output, "topic")
		assert.Contains(t, output, "sensors/kitchen")
		assert.Contains(t, output, "bytes")
	})

	t.Run("fields are sorted key value pairs", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelDebug).WithFields(LogFields{LogFieldTopic: "bound"})

		logger.Warn("message", LogFields{
			LogFieldTopic: "a/b",
			LogFieldBytes: 42,
			LogFieldError: "boom",
		})

		assert.Contains(t, buf.String(), "[WARN] message bytes=42 error=boom topic=a/b\n")
	})

	t.Run("child does not modify parent", func(t *testing.T) {
		buf := &bytes.Buffer{}
		parent := NewStdLogger(buf, LogLevelDebug).WithFields(LogFields{"parent": "p"})
		_ = parent.WithFields(LogFields{"child": "c"})

		parent.Info("message", nil)

		assert.Contains(t, buf.String(), "[INFO] message parent=p\n")
		assert.NotContains(t, buf.String(), "child")
	})

	t.Run("with fields preserves parent fields", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelDebug)

		parent := logger.WithFields(LogFields{"parent": "field"})
		child := parent.WithFields(LogFields{"child": "field"})

		child.Info("message", nil)

		output := buf.String()
		assert.Contains(t, output, "parent")
		assert.Contains(t, output, "child")
	})

	t.Run("level operations", func(t *testing.T) {
		logger := NewStdLogger(&bytes.Buffer{}, LogLevelInfo)
		assert.Equal(t, LogLevelInfo, logger.Level())

		logger.SetLevel(LogLevelDebug)
		assert.Equal(t, LogLevelDebug, logger.Level())
	})

	t.Run("nil writer defaults to stderr", func(t *testing.T) {
		logger := NewStdLogger(nil, LogLevelDebug)
		assert.NotNil(t, logger)
		assert.NotNil(t, logger.logger)
	})
}

func TestLogFieldConstants(t *testing.T) {
	assert.Equal(t, "subscriber_id", LogFieldSubscriberID)
	assert.Equal(t, "client_id", LogFieldClientID)
	assert.Equal(t, "topic", LogFieldTopic)
	assert.Equal(t, "filter", LogFieldFilter)
	assert.Equal(t, "packet_type", LogFieldPacketType)
	assert.Equal(t, "error", LogFieldError)
	assert.Equal(t, "panic", LogFieldPanic)
	assert.Equal(t, "remote_addr", LogFieldRemoteAddr)
	assert.Equal(t, "bytes", LogFieldBytes)
}

func TestLoggerInterface(_ *testing.T) {
	var _ Logger = NewNoOpLogger()
	var _ Logger = NewStdLogger(nil, LogLevelDebug)
	var _ Logger = NewLogrusLogger(nil)
}

func TestLoggerRealWorldUsage(t *testing.T) {
	t.Run("subscriber lifecycle logging", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelDebug)

		subLogger := logger.WithFields(LogFields{
			LogFieldSubscriberID: "3f1c6a1e-0000-4000-8000-000000000001",
			LogFieldFilter:       "sensors/#",
		})

		subLogger.Info("subscribed", nil)
		subLogger.Debug("delivering", LogFields{LogFieldTopic: "sensors/kitchen/temperature"})
		subLogger.Warn("subscriber failed to handle message", LogFields{LogFieldError: "boom"})

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)

		assert.Contains(t, lines[0], "subscribed")
		assert.Contains(t, lines[1], "delivering")
		assert.Contains(t, lines[2], "subscriber failed to handle message")
		assert.Contains(t, lines[2], "boom")
	})
}

func BenchmarkNoOpLogger(b *testing.B) {
	logger := NewNoOpLogger()
	fields := LogFields{"key": "value"}

	b.ReportAllocs()

	for b.Loop() {
		logger.Info("test message", fields)
	}
}

func BenchmarkStdLoggerFiltered(b *testing.B) {
	logger := NewStdLogger(&bytes.Buffer{}, LogLevelError)
	fields := LogFields{"key": "value"}

	b.ReportAllocs()

	for b.Loop() {
		logger.Debug("test message", fields)
	}
}
