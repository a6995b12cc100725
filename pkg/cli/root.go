// Package cli implements the cutover command surface. Exit codes follow the
// automation convention: 0 success/passed, 1 failure, 2 validation warning.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"cutover/internal/app"
	"cutover/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// errWarning marks a run that finished with validation warnings. Mapped to
// exit code 2 so automation can branch without parsing text.
var errWarning = errors.New("completed with warnings")

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errWarning) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// cliEnv carries the wired application into command handlers. Built once in
// PersistentPreRunE so every command sees the same components.
type cliEnv struct {
	app    *app.App
	output string
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		logLevel   string
		output     string
	)
	env := &cliEnv{}

	rootCmd := &cobra.Command{
		Use:           "cutover",
		Short:         "Backend migration coordinator",
		Long:          "Coordinates the live cutover of read/write traffic from the source storage backend to its replacement, and proves migrated data correct before traffic is fully shifted.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				if err := godotenv.Load(configFile); err != nil {
					return fmt.Errorf("load config file %s: %w", configFile, err)
				}
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			}))
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}

			cmd.Flags().Visit(func(f *pflag.Flag) {
				logger.Debug("flag override", "flag", f.Name, "value", f.Value.String())
			})

			a, err := app.New(cmd.Context(), app.Deps{Cfg: cfg, Logger: logger})
			if err != nil {
				return err
			}
			env.app = a
			env.output = output
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if env.app != nil {
				_ = env.app.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(
		newEnableQueriesCmd(env),
		newSetPercentageCmd(env),
		newGradualRolloutCmd(env),
		newRouteCmd(env),
		newStatusCmd(env),
		newValidateCmd(env),
		newExecuteMigrationCmd(env),
		newMonitorCmd(env),
	)
	return rootCmd
}
