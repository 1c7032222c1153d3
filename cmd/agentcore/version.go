package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentcore build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("agentcore %s (%s)\n", cli.build.version, cli.build.commit)
			return nil
		},
	}
}
