package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnvBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		wantErr bool
	}{
		{"true", false},
		{"FALSE", false},
		{"1", false},
		{" true ", false},
		{"\tfalse\n", false},
		{"yes", true},
		{"", true},
		{"0.5", true},
	}

	for _, tt := range tests {
		err := validateEnvBool(tt.value)
		if tt.wantErr {
			require.Error(t, err, tt.value)
			assert.Contains(t, err.Error(), "invalid boolean value")
		} else {
			assert.NoError(t, err, tt.value)
		}
	}
}

func TestValidateEnvThreshold(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvThreshold("0.6"))
	assert.NoError(t, validateEnvThreshold("1"))
	assert.Error(t, validateEnvThreshold("0"))
	assert.Error(t, validateEnvThreshold("1.01"))
	assert.Error(t, validateEnvThreshold("high"))
}

func TestValidateEnvMisc(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvThreads("4"))
	assert.Error(t, validateEnvThreads("-1"))

	assert.NoError(t, validateEnvDuration("45s"))
	assert.Error(t, validateEnvDuration("0s"))
	assert.Error(t, validateEnvDuration("soon"))

	assert.NoError(t, validateEnvPort("3306"))
	assert.Error(t, validateEnvPort("70000"))

	assert.NoError(t, validateEnvLogLevel("DEBUG"))
	assert.Error(t, validateEnvLogLevel("verbose"))

	assert.NoError(t, validateEnvPath("/models/soil.tflite"))
	assert.Error(t, validateEnvPath("../../etc/passwd"))
	assert.Error(t, validateEnvPath("  "))
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	isolateViper(t)
	t.Setenv("SOILNET_MODEL_THRESHOLD", "0.75")
	t.Setenv("SOILNET_MODEL_LOAD_TIMEOUT", "45s")
	t.Setenv("SOILNET_MODEL_THREADS", "lots")

	settings, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, settings.Model.Threshold, 1e-9)
	assert.Equal(t, "45s", settings.Model.LoadTimeout.String())
	assert.Zero(t, settings.Model.Threads, "invalid value must fall back to the default")
}
