package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/earworm/internal/config"
	"github.com/roach88/earworm/internal/rules"
)

// RulesView is the JSON shape of a rule table.
type RulesView struct {
	Source                  string            `json:"source"`
	CompletionThresholdPct  float64           `json:"completion_threshold_pct"`
	MinSecondsBeforeAward   float64           `json:"min_seconds_before_award"`
	AllowReearnOnReplay     bool              `json:"allow_reearn_on_replay"`
	AwardOnFastRate         bool              `json:"award_on_fast_rate"`
	RequireActiveTrackID    bool              `json:"require_active_track_id"`
	ForwardSeekThresholdSec float64           `json:"forward_seek_threshold_sec"`
	DeductOnForwardSeek     bool              `json:"deduct_on_forward_seek"`
	ForwardSeekPenaltyPct   float64           `json:"forward_seek_penalty_pct"`
	RatePenalties           []RatePenaltyView `json:"rate_penalties"`
}

// RatePenaltyView is one rate penalty entry.
type RatePenaltyView struct {
	Threshold float64 `json:"threshold"`
	Penalty   float64 `json:"penalty"`
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate award rules",
	}

	cmd.AddCommand(newRulesValidateCommand(rootOpts))
	cmd.AddCommand(newRulesShowCommand(rootOpts))

	return cmd
}

func newRulesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.cue>",
		Short: "Validate a CUE rule file",
		Long: `Validate a CUE rule file against the rule schema.

The file must define a top-level "rules" struct. Unset fields take the
built-in defaults. A strict fast-rate policy (award_on_fast_rate: false)
cannot be combined with a rate penalty table.

Exit codes:
  0 - Rules are valid
  1 - Rules are invalid
  2 - Command error (file not readable, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesValidate(rootOpts, args[0], cmd)
		},
	}
}

func runRulesValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("Validating rules: %s", path)

	tbl, err := rules.LoadFile(path)
	if err != nil {
		var ce *rules.ConfigError
		if !errors.As(err, &ce) {
			return WrapExitError(ExitCommandError, "failed to read rules", err)
		}

		var details any
		if ce.Pos.IsValid() {
			details = map[string]any{"field": ce.Field, "line": ce.Pos.Line(), "column": ce.Pos.Column()}
		} else if ce.Field != "" {
			details = map[string]any{"field": ce.Field}
		}
		if err := formatter.Error(string(ce.Code), ce.Error(), details); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "rules are invalid")
	}

	if opts.Format == "json" {
		return formatter.Success(rulesView(path, tbl))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid\n", path)
	if opts.Verbose {
		fmt.Fprintln(cmd.OutOrStdout(), rulesTable(tbl))
	}
	return nil
}

func newRulesShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective rule table",
		Long: `Show the rule table earworm uses: the CUE file named by
[paths] rules in the config, or the built-in defaults.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesShow(rootOpts, cmd)
		},
	}
}

func runRulesShow(opts *RootOptions, cmd *cobra.Command) error {
	cfg, _, _, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	source := "built-in"
	tbl := rules.Default()
	if cfg.Paths.Rules != "" {
		source = cfg.Paths.Rules
		tbl, err = rules.LoadFile(cfg.Paths.Rules)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to load rules", err)
		}
	}

	if opts.Format == "json" {
		return newFormatter(opts, cmd).Success(rulesView(source, tbl))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rules: %s\n", source)
	fmt.Fprintln(cmd.OutOrStdout(), rulesTable(tbl))
	return nil
}

func rulesView(source string, tbl rules.Table) RulesView {
	penalties := make([]RatePenaltyView, 0, len(tbl.RatePenalties))
	for _, rp := range tbl.RatePenalties {
		penalties = append(penalties, RatePenaltyView{Threshold: rp.Threshold, Penalty: rp.Penalty})
	}
	return RulesView{
		Source:                  source,
		CompletionThresholdPct:  tbl.CompletionThresholdPct,
		MinSecondsBeforeAward:   tbl.MinSecondsBeforeAward,
		AllowReearnOnReplay:     tbl.AllowReearnOnReplay,
		AwardOnFastRate:         tbl.AwardOnFastRate,
		RequireActiveTrackID:    tbl.RequireActiveTrackID,
		ForwardSeekThresholdSec: tbl.ForwardSeekThresholdSec,
		DeductOnForwardSeek:     tbl.DeductOnForwardSeek,
		ForwardSeekPenaltyPct:   tbl.ForwardSeekPenaltyPct,
		RatePenalties:           penalties,
	}
}

func rulesTable(tbl rules.Table) string {
	num := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

	rows := [][]string{
		{"completion_threshold_pct", num(tbl.CompletionThresholdPct)},
		{"min_seconds_before_award", num(tbl.MinSecondsBeforeAward)},
		{"allow_reearn_on_replay", strconv.FormatBool(tbl.AllowReearnOnReplay)},
		{"award_on_fast_rate", strconv.FormatBool(tbl.AwardOnFastRate)},
		{"require_active_track_id", strconv.FormatBool(tbl.RequireActiveTrackID)},
		{"forward_seek_threshold_sec", num(tbl.ForwardSeekThresholdSec)},
		{"deduct_on_forward_seek", strconv.FormatBool(tbl.DeductOnForwardSeek)},
		{"forward_seek_penalty_pct", num(tbl.ForwardSeekPenaltyPct)},
	}
	for _, rp := range tbl.RatePenalties {
		rows = append(rows, []string{"rate >= " + num(rp.Threshold) + "x", num(rp.Penalty)})
	}
	return renderTable([]string{"Rule", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
