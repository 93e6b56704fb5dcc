package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/earworm/internal/engine"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Yes bool
}

// ResetResult is the output of the reset command.
type ResetResult struct {
	PointsCleared int `json:"points_cleared"`
	Completions   int `json:"completions_cleared"`
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear all progress and points",
		Long: `Clear every completion, penalty record and the points total.

Pending confirmations are discarded with the awards they belong to.
The command refuses to run without --yes.

Example:
  earworm reset --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm the reset")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	if !opts.Yes {
		return NewExitError(ExitCommandError, "reset clears all points; pass --yes to confirm")
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	eng, err := a.newEngine(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	before := eng.Status()
	if _, err := eng.Apply(ctx, engine.Event{Type: engine.EventTypeResetAll}); err != nil {
		return eventExitError(err)
	}

	result := ResetResult{
		PointsCleared: before.TotalPoints,
		Completions:   len(before.CompletedIDs),
	}
	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %d completions and %d points\n", result.Completions, result.PointsCleared)
	return nil
}
