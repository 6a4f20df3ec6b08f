package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cleanup [name]",
		Short: "Remove one or all agent sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]interface{}{}
			switch {
			case all:
				toolArgs["all"] = true
			case len(args) == 1:
				toolArgs["name"] = args[0]
			default:
				return fmt.Errorf("provide a session name or use --all")
			}

			text, err := callDaemonTool(cmd.Context(), "agent_cleanup", toolArgs)
			if err != nil {
				return err
			}
			return printResult(text, false)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every session")

	return cmd
}
