package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/soilnet-go/internal/analysis"
	"github.com/tphakala/soilnet-go/internal/api"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
)

// Command creates the serve command running the local HTTP API.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the JSON API and Prometheus metrics until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !settings.WebServer.Enabled {
				return fmt.Errorf("web server is disabled in the configuration (webserver.enabled)")
			}
			cfg := api.ConfigFromSettings(settings)

			return analysis.Run(cmd.Context(), settings, build, func(rt *analysis.Runtime) error {
				return analysis.Serve(cmd.Context(), rt, cfg)
			})
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags binds serve flags over the config file values.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("listen", "", "Listen address, e.g. :8080")
	cmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")

	if err := viper.BindPFlag("webserver.listen", cmd.Flags().Lookup("listen")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("webserver.metrics", cmd.Flags().Lookup("metrics")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
