package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenTelemetryDisabled(t *testing.T) {
	ctx := context.Background()

	config := LoadConfigFromEnv()
	require.NotNil(t, config)
	config.Enabled = false

	shutdown, err := InitializeOpenTelemetry(ctx, config)
	require.NoError(t, err)
	shutdown()
}

func TestEndpointHost(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"localhost:4318", "localhost:4318"},
		{"http://collector:4318", "collector:4318"},
		{"https://collector:4318/", "collector:4318"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, endpointHost(tt.in))
	}
}

func TestContextualLogger_CarriesCorrelationID(t *testing.T) {
	logger, err := NewLogger(&LogConfig{Level: DebugLevel, Format: "json", Output: "discard"})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ctx := WithCorrelationID(context.Background(), "corr-42")
	logger.WithContext(ctx).
		WithField("pair_key", "a:b").
		WithError(assert.AnError).
		Info("match created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "corr-42", line["correlation_id"])
	assert.Equal(t, "a:b", line["pair_key"])
	assert.Equal(t, assert.AnError.Error(), line["error"])
	assert.Equal(t, "match created", line["message"])
}

func TestWithCorrelationID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	assert.NotEmpty(t, GetCorrelationID(ctx))
	assert.Empty(t, GetCorrelationID(context.Background()))
}

func TestContextualLogger_FieldsAreCopied(t *testing.T) {
	logger, err := NewLogger(&LogConfig{Output: "discard"})
	require.NoError(t, err)

	base := logger.WithContext(context.Background()).WithField("a", 1)
	derived := base.WithField("b", 2)

	assert.NotContains(t, base.Fields(), "b")
	assert.Equal(t, 2, derived.Fields()["b"])
}
