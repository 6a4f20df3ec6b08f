package main

import (
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all active agent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := callDaemonTool(cmd.Context(), "agent_list", map[string]interface{}{})
			if err != nil {
				return err
			}
			return printResult(text, false)
		},
	}
}
