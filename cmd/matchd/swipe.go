package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/meetsmatch/matchengine/internal/matching"
)

// NewSwipeCommand creates the swipe command.
func NewSwipeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "swipe <actor-id> <target-id> <disposition>",
		Short: "Record one swipe decision and print the outcome",
		Long: `Record one swipe decision and print the outcome as JSON.

The disposition accepts any supported vocabulary: like, right, yes,
super-like, up, dislike, left, pass, no.

Example:
  matchd swipe alice bob right`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			disposition, err := matching.ParseDisposition(args[2])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.Engine.RecordSwipe(cmd.Context(), args[0], args[1], disposition)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(outcome)
		},
	}
}
