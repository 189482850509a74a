package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "bpimage", "info", "production")
	logger.Info("hello", "build", "a_b_c")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "bpimage", line["service"])
	assert.Equal(t, "a_b_c", line["build"])
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "bpimage", "warn", "development")
	logger.Info("hidden")
	assert.Empty(t, buf.String())
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, slog.Default(), From(context.Background()))

	l := Discard()
	ctx := With(context.Background(), l)
	assert.Same(t, l, From(ctx))
}
