package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/agentcore/internal/agent/config"
)

func (cli *CLI) validateConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate a topology configuration file without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			doc, err := config.NewLoader(configPath).Load()
			if err != nil {
				return fmt.Errorf("agentcore: load %s: %w", configPath, err)
			}

			report := config.Validate(doc)
			if len(report.Issues) == 0 {
				fmt.Printf("%s: valid\n", configPath)
				return nil
			}

			for _, issue := range report.Issues {
				fmt.Printf("%s: [%s] %s: %s\n", configPath, issue.Code, issue.Field, issue.Message)
			}
			return fmt.Errorf("agentcore: %d validation issue(s)", len(report.Issues))
		},
	}
	return cmd
}
