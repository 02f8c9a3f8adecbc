package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureWritesJSONOutsideLocal(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "water-footprint-api", "production", "debug")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Str("model", "gemini-2.5-flash").Msg("model call succeeded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "water-footprint-api", entry["service"])
	assert.Equal(t, "gemini-2.5-flash", entry["model"])
	assert.Equal(t, "info", entry["level"])
}

func TestConfigureFallsBackToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "svc", "production", "loud")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestFromContextPrefersRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("request_id", "req-1").Logger()
	ctx := WithLogger(context.Background(), logger)

	FromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)

	assert.Same(t, &log.Logger, FromContext(context.Background()))
}
