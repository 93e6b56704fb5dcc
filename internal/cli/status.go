package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/earworm/internal/award"
	"github.com/roach88/earworm/internal/engine"
)

// ChallengeStatus is one row of the status report.
type ChallengeStatus struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Artist         string     `json:"artist"`
	Difficulty     string     `json:"difficulty"`
	BasePoints     int        `json:"base_points"`
	Completed      bool       `json:"completed"`
	Pending        bool       `json:"pending"`
	Progress       float64    `json:"progress"`
	Points         int        `json:"points"` // earned when completed, projected otherwise
	PointsDeducted int        `json:"points_deducted"`
	ForwardSeeks   int        `json:"forward_seeks"`
	PeakRate       float64    `json:"peak_rate,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// StatusResult is the output of the status command.
type StatusResult struct {
	TotalPoints int               `json:"total_points"`
	Completed   []string          `json:"completed"`
	Pending     int               `json:"pending"`
	Challenges  []ChallengeStatus `json:"challenges"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show points and per-challenge progress",
		Long: `Show the points ledger and the progress of every challenge.

Points for completed challenges are what was earned after penalties.
For challenges in progress the projected points for the current
progress are shown instead.

Examples:
  earworm status
  earworm status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, err := a.newEngine(commandContext(cmd), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	result := buildStatus(eng)
	if opts.Format == "json" {
		return newFormatter(opts, cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Total points: %d\n", result.TotalPoints)
	fmt.Fprintf(w, "Completed: %d of %d\n", len(result.Completed), len(result.Challenges))
	if result.Pending > 0 {
		fmt.Fprintf(w, "Awaiting confirmation: %d\n", result.Pending)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, statusTable(result.Challenges))
	return nil
}

// buildStatus joins the catalog with the engine's records.
func buildStatus(eng *engine.Engine) StatusResult {
	st := eng.Status()

	pending := make(map[string]bool, len(st.Pending))
	for _, req := range st.Pending {
		pending[req.ChallengeID] = true
	}

	rows := make([]ChallengeStatus, 0, len(st.Records))
	for _, rec := range st.Records {
		ch, ok := eng.Catalog().Get(rec.ChallengeID)
		if !ok {
			continue
		}

		row := ChallengeStatus{
			ID:             ch.ID,
			Title:          ch.Title,
			Artist:         ch.Artist,
			Difficulty:     string(ch.Difficulty),
			BasePoints:     ch.BasePoints,
			Completed:      rec.Completed,
			Pending:        pending[ch.ID],
			Progress:       rec.ProgressPct,
			PointsDeducted: rec.PointsDeducted,
			ForwardSeeks:   rec.ForwardSeeks,
			PeakRate:       rec.PeakRate,
		}
		if rec.Completed {
			row.Points = max(ch.BasePoints-rec.PointsDeducted, 0)
			if !rec.CompletedAt.IsZero() {
				at := rec.CompletedAt
				row.CompletedAt = &at
			}
		} else {
			row.Points = award.ProjectedPoints(ch.BasePoints, rec.ProgressPct)
		}
		rows = append(rows, row)
	}

	completed := st.CompletedIDs
	if completed == nil {
		completed = []string{}
	}

	return StatusResult{
		TotalPoints: st.TotalPoints,
		Completed:   completed,
		Pending:     len(st.Pending),
		Challenges:  rows,
	}
}

func statusTable(rows []ChallengeStatus) string {
	headers := []string{"ID", "Title", "Artist", "Difficulty", "Progress", "Points", "Seeks", "State"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		points := fmt.Sprintf("%d/%d", r.Points, r.BasePoints)
		if !r.Completed && r.Progress > 0 {
			points = "~" + points
		}
		cells = append(cells, []string{
			r.ID,
			r.Title,
			r.Artist,
			r.Difficulty,
			strconv.FormatFloat(r.Progress, 'f', 0, 64) + "%",
			points,
			strconv.Itoa(r.ForwardSeeks),
			challengeState(r),
		})
	}
	return renderTable(headers, cells, aligns)
}

func challengeState(r ChallengeStatus) string {
	switch {
	case r.Pending:
		return "confirming"
	case r.Completed:
		return "completed"
	case r.Progress > 0:
		return "in progress"
	default:
		return "-"
	}
}
