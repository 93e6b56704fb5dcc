package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/earworm/internal/engine"
	"github.com/roach88/earworm/internal/harness"
)

// ConformanceOptions holds flags for the test command.
type ConformanceOptions struct {
	*RootOptions
	Update bool   // regenerate golden traces
	Filter string // glob over scenario file names
}

// GoldenState is how a scenario's trace compared with its golden file.
type GoldenState string

const (
	GoldenAbsent   GoldenState = "absent"
	GoldenMatch    GoldenState = "match"
	GoldenMismatch GoldenState = "mismatch"
	GoldenUpdated  GoldenState = "updated"
)

// ScenarioVerdict is the conformance result of one scenario file.
type ScenarioVerdict struct {
	Name        string      `json:"name"`
	File        string      `json:"file"`
	Pass        bool        `json:"pass"`
	Golden      GoldenState `json:"golden,omitempty"`
	TotalPoints int         `json:"total_points"`
	Awards      int         `json:"awards"`
	Rollbacks   int         `json:"rollbacks"`
	Errors      []string    `json:"errors,omitempty"`
}

// ConformanceReport summarizes a test run.
type ConformanceReport struct {
	Scenarios []ScenarioVerdict `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConformanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run telemetry scenarios against golden traces",
		Long: `Run telemetry scenarios through the award engine.

Each scenario runs against a fresh in-memory database with scripted
confirmations, so results are deterministic. Final state assertions are
checked, and when <scenarios-dir>/golden/<name>.golden exists the trace
must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  earworm test ./scenarios
  earworm test ./scenarios --filter "rollback*"
  earworm test ./scenarios --update
  earworm test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConformance(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runConformance(opts *ConformanceOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	report := ConformanceReport{Scenarios: make([]ScenarioVerdict, 0, len(files))}
	for _, file := range files {
		v := checkScenario(file, opts.Update)
		if opts.Format != "json" {
			printVerdict(cmd.OutOrStdout(), v)
		}
		report.add(v)
	}

	if opts.Format == "json" {
		return writeReportJSON(opts, cmd, report)
	}
	return writeReportText(cmd.OutOrStdout(), report)
}

func (r *ConformanceReport) add(v ScenarioVerdict) {
	r.Scenarios = append(r.Scenarios, v)
	r.Total++
	if v.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// findScenarioFiles returns the YAML scenario files under dir, in lexical
// order, whose base name matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// checkScenario runs one scenario file and judges it: assertions first,
// then the golden trace when one exists. With update the golden trace is
// rewritten instead of compared.
func checkScenario(file string, update bool) ScenarioVerdict {
	v := ScenarioVerdict{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		v.Errors = []string{fmt.Sprintf("load: %v", err)}
		return v
	}
	v.Name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		v.Errors = []string{fmt.Sprintf("run: %v", err)}
		return v
	}
	v.TotalPoints = result.State.TotalPoints
	for _, ev := range result.Trace {
		if ev.Award != nil {
			v.Awards++
		}
		if ev.Confirmation == string(engine.ConfirmationRolledBack) {
			v.Rollbacks++
		}
	}

	goldenPath := goldenFilePath(file)
	trace, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		v.Errors = []string{fmt.Sprintf("golden: %v", err)}
		return v
	}

	switch {
	case update:
		if err := writeGolden(goldenPath, trace); err != nil {
			v.Errors = []string{fmt.Sprintf("golden: %v", err)}
			return v
		}
		// --update passes regardless of assertions.
		v.Golden = GoldenUpdated
		v.Pass = true
		return v

	default:
		want, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			v.Golden = GoldenAbsent
		case err != nil:
			v.Errors = []string{fmt.Sprintf("golden: %v", err)}
			return v
		case bytes.Equal(want, trace):
			v.Golden = GoldenMatch
		default:
			v.Golden = GoldenMismatch
			v.Errors = append(v.Errors, "golden trace mismatch (run with --update to regenerate)")
		}
	}

	v.Errors = append(v.Errors, result.Errors...)
	v.Pass = len(v.Errors) == 0
	return v
}

// goldenFilePath returns <dir>/golden/<name>.golden for a scenario file.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, trace, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func printVerdict(w io.Writer, v ScenarioVerdict) {
	if !v.Pass {
		fmt.Fprintf(w, "✗ %s\n", v.Name)
		for _, e := range v.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return
	}

	suffix := ""
	if v.Golden == GoldenUpdated {
		suffix = " (golden updated)"
	}
	fmt.Fprintf(w, "✓ %s: %d points, %d awards, %d rollbacks%s\n",
		v.Name, v.TotalPoints, v.Awards, v.Rollbacks, suffix)
}

func writeReportJSON(opts *ConformanceOptions, cmd *cobra.Command, report ConformanceReport) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if report.Failed == 0 {
		return formatter.Success(report)
	}

	msg := fmt.Sprintf("%d scenario(s) failed", report.Failed)
	if err := json.NewEncoder(formatter.Writer).Encode(CLIResponse{
		Status: "error",
		Data:   report,
		Error:  &CLIError{Code: "E_TEST_FAILED", Message: msg},
	}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

func writeReportText(w io.Writer, report ConformanceReport) error {
	if report.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Scenarios: %d passed, %d failed, %d total\n", report.Passed, report.Failed, report.Total)
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
