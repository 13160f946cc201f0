package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{"valid version", NewContext("1.0.0", "2024-01-01"), "1.0.0"},
		{"pre-release tag", NewContext("1.0.0-beta.1", "2024-01-01"), "1.0.0-beta.1"},
		{"build metadata", NewContext("1.0.0+build.123", "2024-01-01"), "1.0.0+build.123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ctx.Version())
			assert.Equal(t, "soilnet/"+tt.want, tt.ctx.UserAgent())
		})
	}
}

func TestContextUnset(t *testing.T) {
	t.Parallel()

	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.BuildDate())
	assert.Equal(t, UnknownValue, NewContext("", "").BuildDate())
	assert.NotEmpty(t, nilCtx.Version())
	assert.Equal(t, "2024-01-01", NewContext("", "2024-01-01").BuildDate())
}
