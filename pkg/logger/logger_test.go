package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.DebugLevel).With("pipeline")

	l.Warn("instrument skipped",
		String("symbol", "BTCUSDT"),
		Int("candles", 12),
		Float64("ratio", 0.5),
		Strings("families", []string{"a", "b"}),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "warn", got["level"])
	assert.Equal(t, "pipeline", got["component"])
	assert.Equal(t, "BTCUSDT", got["symbol"])
	assert.Equal(t, 12.0, got["candles"])
	assert.Equal(t, 0.5, got["ratio"])
	assert.Equal(t, []any{"a", "b"}, got["families"])
	assert.Equal(t, 1500.0, got["took"])
	assert.Equal(t, "boom", got["error"])
}

func TestLogger_WithString(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.InfoLevel).With("builder").WithString("family", "short_5m")
	l.Info("built")

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "builder", got["component"])
	assert.Equal(t, "short_5m", got["family"])
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.WarnLevel)
	l.Info("hidden")
	l.Debug("hidden")
	assert.Zero(t, buf.Len())
	l.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().With("x").Info("ignored", Bool("ok", true)) })
}
