package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Model:    ModelSettings{Threshold: 0.6, LoadTimeout: 30 * time.Second},
		Pipeline: PipelineSettings{TargetSize: 224, MinDimension: 100, MaxDimension: 4000, BlurThreshold: 100},
		Output:   OutputSettings{SQLite: SQLiteSettings{Enabled: true, Path: "soilnet.db"}},
		WebServer: WebServerSettings{
			Enabled:     true,
			Listen:      ":8080",
			MaxUploadMB: 20,
		},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"threshold zero", func(s *Settings) { s.Model.Threshold = 0 }, "model threshold"},
		{"negative threads", func(s *Settings) { s.Model.Threads = -2 }, "threads"},
		{"no load timeout", func(s *Settings) { s.Model.LoadTimeout = 0 }, "load timeout"},
		{"inverted dimensions", func(s *Settings) { s.Pipeline.MaxDimension = 50 }, "dimension range"},
		{"both stores", func(s *Settings) { s.Output.MySQL.Enabled = true }, "only one"},
		{"no store", func(s *Settings) { s.Output.SQLite.Enabled = false }, "no result store"},
		{"mysql incomplete", func(s *Settings) {
			s.Output.SQLite.Enabled = false
			s.Output.MySQL = MySQLSettings{Enabled: true, Host: "db"}
		}, "username"},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "DSN"},
		{"bad listen", func(s *Settings) { s.WebServer.Listen = "8080" }, "listen address"},
		{"bad metrics listen", func(s *Settings) { s.WebServer.MetricsListen = "9100" }, "metrics listen"},
		{"webserver disabled ignores listen", func(s *Settings) {
			s.WebServer.Enabled = false
			s.WebServer.Listen = ""
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := validSettings()
			tt.mutate(settings)
			err := ValidateSettings(settings)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	settings := validSettings()
	settings.Model.Threshold = 2
	settings.Pipeline.TargetSize = 0
	settings.Telemetry.Enabled = true

	err := ValidateSettings(settings)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}
