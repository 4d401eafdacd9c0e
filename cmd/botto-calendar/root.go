package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string) int {
	root := newRootCmd(Version)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

func newRootCmd(version string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "botto-calendar",
		Short:        "Calendar driven announcement boards with reaction roles",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML config, created with defaults if missing")

	cmd.AddCommand(newRunCmd(&configPath))
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newImportCmd(&configPath))

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version == "" {
		version = "dev"
	}
	cmd.Version = version
	return cmd
}
