package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tzdata-packager/internal/config"
	"github.com/oshokin/tzdata-packager/internal/logger"
	"github.com/oshokin/tzdata-packager/internal/service/builder"
	"github.com/oshokin/tzdata-packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// logLevel adjusts log verbosity.
	logLevel string

	// rootCmd represents the base command for building and publishing the data set.
	rootCmd = &cobra.Command{
		Use:   "tzdata-builder",
		Short: "Patch, compile and publish the staged time-zone data",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &builder.Options{
				ConfigPath: configPath,
			}

			return builder.Run(ctx, options)
		},
	}
)

// Execute runs the tzdata-builder CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
