package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nmxmxh/peerdesk/pkg/json"
)

func TestNew(t *testing.T) {
	logger := New(Config{ServiceName: "peerdesk"})
	assert.NotNil(t, logger)
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{
		Environment: "test",
		LogLevel:    "info",
		ServiceName: "peerdesk",
	}, zapcore.AddSync(&buf))

	logger.Info("test message",
		zap.String("key1", "value1"),
		zap.Int("key2", 42),
	)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "info", logEntry["level"])
	assert.Equal(t, "value1", logEntry["key1"])
	assert.Equal(t, float64(42), logEntry["key2"])
	assert.Equal(t, "peerdesk", logEntry["service"])
	assert.Equal(t, "test", logEntry["environment"])
	assert.Contains(t, logEntry, "ts")
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		configured string
		logAt      zapcore.Level
		written    bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{"info", zapcore.DebugLevel, false},
		{"warn", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, true},
		{"error", zapcore.WarnLevel, false},
		{"bogus", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.configured+"/"+tt.logAt.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(Config{Environment: "test", LogLevel: tt.configured}, zapcore.AddSync(&buf))

			if ce := logger.Check(tt.logAt, "message"); ce != nil {
				ce.Write()
			}
			assert.Equal(t, tt.written, buf.Len() > 0)
		})
	}
}

func TestSubServiceContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(Config{Environment: "test"}, zapcore.AddSync(&buf))

	ctx := WithContext(context.Background(), "sweeper")
	FromContext(ctx, base).Info("tick")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "sweeper", logEntry["sub_service"])

	assert.Equal(t, context.Background(), WithContext(context.Background(), ""))
}
