package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/earworm/internal/award"
	"github.com/roach88/earworm/internal/engine"
	"github.com/roach88/earworm/internal/progress"
)

// ProgressResult is the output of the progress command. Saved is always
// false: in-progress percentages are never stored.
type ProgressResult struct {
	ID        string  `json:"id"`
	Requested float64 `json:"requested"`
	Progress  float64 `json:"progress"`
	Completed bool    `json:"completed"`
	Projected int     `json:"projected_points"`
	Saved     bool    `json:"saved"`
}

// NewProgressCommand creates the progress command.
func NewProgressCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <challenge-id> <pct>",
		Short: "Preview a challenge at a given progress",
		Long: `Preview what a manual progress update would do to a challenge.

The percentage is applied to the stored state the same way the player's
manual progress action is: clamped to 0..100, and completed challenges
stay at 100. Only completions and their penalties are stored, so nothing
is saved; the command reports the resulting progress and the points it
would be worth.

Examples:
  earworm progress challenge-1 50
  earworm progress challenge-2 120 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgress(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runProgress(opts *RootOptions, id, rawPct string, cmd *cobra.Command) error {
	pct, err := strconv.ParseFloat(rawPct, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid percentage %q", rawPct), err)
	}

	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	eng, err := a.newEngine(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	out, err := eng.Apply(ctx, engine.Event{Type: engine.EventTypeProgressSet, TrackID: id, Pct: pct})
	if err != nil {
		return eventExitError(err)
	}

	rec, _ := recordFor(eng, out.TrackID)
	ch, _ := eng.Catalog().Get(out.TrackID)
	result := ProgressResult{
		ID:        out.TrackID,
		Requested: pct,
		Progress:  out.Progress,
		Completed: rec.Completed,
		Projected: award.ProjectedPoints(ch.BasePoints, out.Progress),
	}
	if rec.Completed {
		result.Projected = ch.BasePoints - rec.PointsDeducted
	}

	if opts.Format == "json" {
		return newFormatter(opts, cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	if result.Completed {
		fmt.Fprintf(w, "%s is already completed; progress stays at 100%% (not saved)\n", ch.Title)
		return nil
	}
	fmt.Fprintf(w, "%s at %s%% would be worth ~%d of %d points (not saved)\n",
		ch.Title, strconv.FormatFloat(result.Progress, 'f', -1, 64), result.Projected, ch.BasePoints)
	return nil
}

// eventExitError maps an engine error to an exit code. Bad input is a
// command error; anything else is a failure.
func eventExitError(err error) error {
	var re *engine.RuntimeError
	if errors.As(err, &re) && re.Code != engine.ErrCodePersistFailed {
		return WrapExitError(ExitCommandError, "event rejected", err)
	}
	return WrapExitError(ExitFailure, "event failed", err)
}

func recordFor(eng *engine.Engine, id string) (progress.Record, bool) {
	for _, r := range eng.Status().Records {
		if r.ChallengeID == id {
			return r, true
		}
	}
	return progress.Record{}, false
}
