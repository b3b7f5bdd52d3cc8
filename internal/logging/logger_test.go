package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewLogger_Production_JSONHandler(t *testing.T) {
	logger := NewLogger("production", "")
	require.NotNil(t, logger)

	_, ok := logger.Handler().(*slog.JSONHandler)
	assert.True(t, ok, "production logger should use JSONHandler, got %T", logger.Handler())
}

func TestNewLogger_OtherEnvs_TextHandler(t *testing.T) {
	for _, env := range []string{"development", "", "staging"} {
		logger := NewLogger(env, "")
		_, ok := logger.Handler().(*slog.TextHandler)
		assert.True(t, ok, "env %q should use TextHandler, got %T", env, logger.Handler())
	}
}

func TestNewLogger_DefaultLevels(t *testing.T) {
	ctx := context.Background()

	prod := NewLogger("production", "")
	assert.True(t, prod.Handler().Enabled(ctx, slog.LevelInfo))
	assert.False(t, prod.Handler().Enabled(ctx, slog.LevelDebug))

	dev := NewLogger("development", "")
	assert.True(t, dev.Handler().Enabled(ctx, slog.LevelDebug))
}

func TestNewLogger_LevelOverride(t *testing.T) {
	ctx := context.Background()

	logger := NewLogger("development", "warn")
	assert.False(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelWarn))

	// Unparseable levels keep the environment default.
	logger = NewLogger("production", "loud")
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(ctx, slog.LevelDebug))
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "production", "").Info("refresh rejected", "owner", "user-1")

	line := buf.String()
	assert.Equal(t, "refresh rejected", gjson.Get(line, "msg").String())
	assert.Equal(t, "user-1", gjson.Get(line, "owner").String())
}
