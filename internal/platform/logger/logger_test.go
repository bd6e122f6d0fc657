package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelWarn)

	log.Info("submission stored")
	assert.Empty(t, buf.String(), "below level")

	log.Warn("lock degraded", "breaker", "redis-lock")
	assert.Contains(t, buf.String(), `"msg":"lock degraded"`)
	assert.Contains(t, buf.String(), `"breaker":"redis-lock"`)
}
