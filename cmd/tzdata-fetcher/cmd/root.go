package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tzdata-packager/internal/config"
	"github.com/oshokin/tzdata-packager/internal/logger"
	"github.com/oshokin/tzdata-packager/internal/service/fetcher"
	"github.com/oshokin/tzdata-packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// tools and data select the artifact classes to refresh.
	tools bool
	data  bool

	// releaseVersion pins an exact upstream release instead of the latest.
	releaseVersion string

	// logLevel adjusts log verbosity.
	logLevel string

	// rootCmd represents the base command for fetching upstream releases.
	rootCmd = &cobra.Command{
		Use:   "tzdata-fetcher",
		Short: "Download and verify upstream time-zone releases",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &fetcher.Options{
				ConfigPath:     configPath,
				Tools:          tools,
				Data:           data,
				ReleaseVersion: releaseVersion,
			}

			return fetcher.Run(ctx, options)
		},
	}
)

// Execute runs the tzdata-fetcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().BoolVar(&tools, "tools", false, "refresh the tooling archives")
	rootCmd.Flags().BoolVar(&data, "data", false, "refresh the data archive")
	rootCmd.Flags().StringVarP(&releaseVersion, "release", "r", "",
		"pin a specific release revision instead of latest, for example 2023a")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
