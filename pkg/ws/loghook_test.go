package ws

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogHookBroadcastsToAdminLogs(t *testing.T) {
	reg := NewRegistry()
	tr := newIdleTransport()
	reg.Register(GroupAdminLogs, tr)

	hook := NewLogHook(reg, zapcore.InfoLevel)
	entry := zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Time:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LoggerName: "bridge",
		Message:    "redelivery",
	}
	require.NoError(t, hook.OnWrite(entry, []zapcore.Field{
		zap.String("queue", "events"),
		zap.Int("attempt", 3),
		zap.Error(errors.New("timeout")),
		zap.Duration("backoff", time.Second),
	}))

	require.Equal(t, 1, tr.Pending())
	msg, _ := tr.queue.pop()
	rec, ok := msg.(LogRecord)
	require.True(t, ok)
	assert.Equal(t, LogWarn, rec.Level)
	assert.Equal(t, "bridge", rec.Logger)
	assert.Equal(t, "redelivery", rec.Message)
	assert.Equal(t, "events", rec.Fields["queue"])
	assert.Equal(t, int64(3), rec.Fields["attempt"])
	assert.Equal(t, "timeout", rec.Fields["error"])
	assert.Equal(t, "1s", rec.Fields["backoff"])
}

func TestLogHookFiltersLevelAndIdleGroup(t *testing.T) {
	reg := NewRegistry()
	hook := NewLogHook(reg, zapcore.InfoLevel)

	// 无订阅者
	require.NoError(t, hook.OnWrite(zapcore.Entry{Level: zapcore.ErrorLevel}, nil))

	tr := newIdleTransport()
	reg.Register(GroupAdminLogs, tr)
	require.NoError(t, hook.OnWrite(zapcore.Entry{Level: zapcore.DebugLevel}, nil))
	assert.Equal(t, 0, tr.Pending())

	require.NoError(t, hook.OnWrite(zapcore.Entry{Level: zapcore.FatalLevel}, nil))
	msg, _ := tr.queue.pop()
	assert.Equal(t, LogFatal, msg.(LogRecord).Level)
}
