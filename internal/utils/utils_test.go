package utils

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info", true)
	logger.Debug("hidden")
	logger.Info("shown", slog.String("model", "m1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"model":"m1"`)
}

func TestAppErrorUnwrap(t *testing.T) {
	base := errors.New("disk full")
	err := NewAppError("write snapshot", "failed to persist", base)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "write snapshot: failed to persist: disk full", err.Error())
	assert.Equal(t, "failed to persist: disk full", Message(err))
	assert.Equal(t, "plain", Message(errors.New("plain")))
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 999, time.FixedZone("X", 2*3600))
	formatted := FormatTimestamp(now)

	parsed, err := ParseTimestamp(formatted)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now.Truncate(time.Second)))

	_, err = ParseTimestamp("")
	assert.Error(t, err)
}
