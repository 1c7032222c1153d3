package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// buildInfo carries the values main stamps in at link time (or the
// defaults declared in main.go during local builds).
type buildInfo struct {
	version string
	commit  string
}

// CLI is the agentcore command-line shell: one root command fronting the
// run/validate-config/version subcommands, wired the way the migration
// tool's CLI wires its own subcommands.
type CLI struct {
	logger *slog.Logger
	build  buildInfo

	// logConfigPath is the structured-log output path main resolved the
	// logger from; run wires it into the manager's parameter-store keys.
	logConfigPath string
}

// NewCLI builds a CLI. A nil logger falls back to slog.Default().
func NewCLI(logger *slog.Logger, build buildInfo) *CLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{logger: logger, build: build}
}

// GetRootCommand returns the root cobra command with every subcommand
// attached.
func (cli *CLI) GetRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentcore",
		Short: "Pluggable host-agent runtime",
		Long:  "agentcore runs a configured topology of sources, pipes, and sinks until stopped, hot-reloading the topology on configuration change.",
	}

	root.PersistentFlags().String("config", "config.yaml", "path to the topology configuration file")

	root.AddCommand(
		cli.runCommand(),
		cli.validateConfigCommand(),
		cli.versionCommand(),
	)

	return root
}

// Execute runs the CLI against os.Args.
func (cli *CLI) Execute() error {
	return cli.GetRootCommand().Execute()
}
