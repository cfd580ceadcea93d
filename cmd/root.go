package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tphakala/dbstation/cmd/config"
	"github.com/tphakala/dbstation/cmd/devices"
	"github.com/tphakala/dbstation/cmd/realtime"
	"github.com/tphakala/dbstation/internal/buildinfo"
	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/logging"
)

// RootCommand creates and returns the root command. Subcommands receive
// settings, which is filled from the config file before any of them runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configPath string
		debug      bool
		closeLog   func() error
	)

	rootCmd := &cobra.Command{
		Use:           "dbstation",
		Short:         "Multi-microphone sound level station",
		Version:       buildinfo.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		realtime.Command(settings),
		devices.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configPath)
		if err != nil {
			return err
		}
		if debug {
			loaded.Debug = true
		}
		*settings = *loaded

		closeLog, err = initLogging(settings)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if closeLog != nil {
			return closeLog()
		}
		return nil
	}

	return rootCmd
}

// initLogging applies the log level and the optional rotated log file.
func initLogging(settings *conf.Settings) (func() error, error) {
	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	logCfg := settings.Main.Log
	if !logCfg.Enabled {
		return nil, nil
	}
	return logging.EnableFileOutput(logCfg.Path, logging.FileConfig{
		MaxSizeMB:  logCfg.MaxSize,
		MaxBackups: logCfg.MaxBackups,
		MaxAgeDays: logCfg.MaxAge,
	})
}
