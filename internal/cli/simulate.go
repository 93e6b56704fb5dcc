package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/earworm/internal/harness"
	"github.com/roach88/earworm/internal/session"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	SkipAssertions bool
}

// SimulateResult is the output of the simulate command.
type SimulateResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Errors   []string             `json:"errors,omitempty"`
	Trace    []harness.TraceEvent `json:"trace"`
	State    harness.FinalState   `json:"state"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Play a telemetry scenario against the configured database",
		Long: `Play a telemetry scenario through the award engine using the configured
database, rules, catalog and confirmation backend.

Unlike "earworm test", points and completions are stored. Assertions
see whatever the database already held, so use --skip-assertions when
replaying a scenario onto existing state.

Examples:
  earworm simulate ./scenarios/clean_completion.yaml
  earworm simulate --db /tmp/scratch.db ./scenarios/outbox_restart.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipAssertions, "skip-assertions", false, "report the trace without checking assertions")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	if opts.SkipAssertions {
		scenario.Assertions = nil
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := harness.RunWithOptions(scenario, harness.Options{
		Store:          a.store,
		Confirmer:      a.confirmer,
		Rules:          &a.rules,
		Catalog:        a.catalog,
		ConfirmTimeout: a.cfg.Sync.Timeout(),
		Logger:         a.logger,
		Notifier:       noticePrinter(cmd.ErrOrStderr()),
		Tokens:         session.UUIDv7Generator{},
		Now:            time.Now,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "scenario execution failed", err)
	}

	out := SimulateResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Trace:    result.Trace,
		State:    result.State,
	}

	if opts.Format == "json" {
		if err := newFormatter(opts.RootOptions, cmd).Success(out); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Scenario: %s\n", scenario.Name)
		for _, ev := range result.Trace {
			fmt.Fprintf(w, "  %s\n", harness.FormatTraceEvent(ev))
		}
		fmt.Fprintf(w, "Total points: %d (completed %d, awaiting confirmation %d)\n",
			result.State.TotalPoints, len(result.State.Completed), result.State.Pending)
		for _, e := range result.Errors {
			fmt.Fprintln(w, e)
		}
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d assertion(s) failed", len(result.Errors)))
	}
	return nil
}
