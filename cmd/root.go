// Package cmd builds the soilnet command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/soilnet-go/cmd/classify"
	configcmd "github.com/tphakala/soilnet-go/cmd/config"
	"github.com/tphakala/soilnet-go/cmd/export"
	"github.com/tphakala/soilnet-go/cmd/history"
	"github.com/tphakala/soilnet-go/cmd/migrate"
	"github.com/tphakala/soilnet-go/cmd/record"
	"github.com/tphakala/soilnet-go/cmd/serve"
	"github.com/tphakala/soilnet-go/cmd/stats"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "soilnet",
		Short:         "Soil type classification from photos",
		Long:          "Classify soil photos with an on-device model and keep a local history of the results.",
		Version:       build.Version(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	configCmd := configcmd.Command()

	rootCmd.AddCommand(
		classify.Command(settings, build),
		history.Command(settings, build),
		stats.Command(settings, build),
		export.Command(settings, build),
		record.Command(settings, build),
		migrate.Command(settings, build),
		serve.Command(settings, build),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config init must work without a readable config
		if cmd == configCmd || cmd.Parent() == configCmd {
			return nil
		}
		return initialize(settings, configFile, build)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Shutdown(telemetryFlushTimeout)
		return logger.Global().Close()
	}

	return rootCmd
}

// initialize loads the configuration and sets up logging and telemetry.
func initialize(settings *conf.Settings, configFile string, build *buildinfo.Context) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}

	loaded, err := conf.Load()
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.Init(&settings.Telemetry, build); err != nil {
		// reporting is optional, keep running without it
		logger.Global().Module("main").Warn("telemetry disabled", logger.Error(err))
	}

	logger.Global().Module("main").Debug("configuration loaded",
		logger.String("version", build.Version()),
		logger.String("config", viper.ConfigFileUsed()))
	return nil
}
