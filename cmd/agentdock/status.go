package main

import (
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Get status of a specific agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := callDaemonTool(cmd.Context(), "agent_status", map[string]interface{}{
				"name": args[0],
			})
			if err != nil {
				return err
			}
			return printResult(text, false)
		},
	}
}
