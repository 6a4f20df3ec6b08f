package main

import (
	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	var (
		quiet    bool
		verboser bool
		fork     bool
		forkName string
		parentID string
	)

	cmd := &cobra.Command{
		Use:   "call <name> <message>",
		Short: "Send a message to an agent session (auto-creates if new)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbosity := "normal"
			if quiet {
				verbosity = "quiet"
			}
			if verboser {
				verbosity = "verbose"
			}

			toolArgs := map[string]interface{}{
				"name":      args[0],
				"message":   args[1],
				"verbosity": verbosity,
			}
			if fork {
				toolArgs["fork"] = true
			}
			if forkName != "" {
				toolArgs["fork_name"] = forkName
			}
			if parentID != "" {
				toolArgs["parent_session_id"] = parentID
			}

			text, err := callDaemonTool(cmd.Context(), "agent_call", toolArgs)
			if err != nil {
				return err
			}
			return printResult(text, quiet)
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "Only print the final response text")
	cmd.Flags().BoolVar(&verboser, "show-events", false, "Include all stream events in the output")
	cmd.Flags().BoolVar(&fork, "fork", false, "Fork the session before sending")
	cmd.Flags().StringVar(&forkName, "fork-name", "", "Name for the forked session")
	cmd.Flags().StringVar(&parentID, "parent-session-id", "", "Resume point for a newly created session")

	return cmd
}
