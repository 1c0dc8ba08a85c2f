// Package main is the entry point for the showroom CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/itesm-showroom/showroom/internal/config"
	"github.com/itesm-showroom/showroom/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "showroom",
		Short:         "Conversational assistants with session history and token accounting",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("env-file", ".env", "Environment file loaded before the configuration")
	root.AddCommand(
		versionCmd(),
		serveCmd(),
		askCmd(),
		keyPointsCmd(),
		chatCmd(),
		mcpCmd(),
		serviceCmd(),
		configCmd(),
	)
	return root
}

// loadEnvFile loads path into the environment without overriding variables
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "showroom %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func serveCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return app.Run(cmd.Context(), app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				DataDir:    dataDir,
			})
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (default $XDG_DATA_HOME/showroom)")
	return cmd
}

// runtime loads the configuration named by the --config flag and builds
// a runtime. Callers must Close it.
func runtime(cmd *cobra.Command) (*app.Runtime, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, _, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg, app.Options{
		Version:   version,
		LogOutput: cmd.ErrOrStderr(),
	})
}

func closeRuntime(rt *app.Runtime) {
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Warn("runtime close failed", "error", err)
	}
}
