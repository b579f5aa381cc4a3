// Package cli provides the command-line interface for exthost.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/exthost/exthost/internal/cli/commands"
	"github.com/exthost/exthost/internal/config"
	"github.com/exthost/exthost/internal/version"
)

var rootCmd = newRootCommand()

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exthost",
		Short: "exthost - a web application host for pluggable extensions",
		Long: `exthost loads extensions from the system and user extension directories,
runs their install and init hooks, and serves their static files.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				if err := os.Setenv("EXTHOST_CONFIG_PATH", path); err != nil {
					return err
				}
			}
			if shouldSkipSelfCheck(cmd) {
				return nil
			}
			created, err := config.EnsureFile()
			if err != nil {
				return fmt.Errorf("failed to create config: %w", err)
			}
			if created {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Created default config at %s\n", config.ConfigPath())
			}
			return nil
		},
	}

	cmd.AddCommand(commands.NewServeCommand())
	cmd.AddCommand(commands.NewStopCommand())
	cmd.AddCommand(commands.NewExtensionsCommand())
	cmd.AddCommand(commands.NewStatusCommand())
	cmd.AddCommand(commands.NewVersionCommand())

	// Global flags
	cmd.PersistentFlags().StringP("config", "c", "", "config file (default is ~/.exthost/exthost.json)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	return cmd
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func shouldSkipSelfCheck(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "exthost", "help", "completion", "version", "stop":
		return true
	}
	return false
}
