package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/earworm/internal/catalog"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", FormatTraceEvent(event))
		}
	}

	return buf.String()
}

// FormatTraceEvent renders one trace event on a single line.
func FormatTraceEvent(event TraceEvent) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "[%d] %s", event.Seq, event.Event)
	if event.Track != "" {
		fmt.Fprintf(&buf, " %s", event.Track)
	}
	if event.Verdict != "" {
		fmt.Fprintf(&buf, " verdict=%s", event.Verdict)
	}
	if event.Award != nil {
		fmt.Fprintf(&buf, " points=%d", event.Award.Points)
	}
	if event.Confirmation != "" {
		fmt.Fprintf(&buf, " confirmation=%s", event.Confirmation)
	}
	if event.Error != "" {
		fmt.Fprintf(&buf, " error=%q", event.Error)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTotalPoints:
			err = assertTotalPoints(result, assertion)
		case AssertCompleted:
			err = assertCompleted(result, assertion)
		case AssertRecord:
			err = assertRecord(result, assertion)
		case AssertAwardCount:
			err = assertAwardCount(result, assertion)
		case AssertVerdictSeen:
			err = assertVerdictSeen(result, assertion)
		case AssertConfirmationCount:
			err = assertConfirmationCount(result, assertion)
		case AssertPending:
			err = assertStateCount(AssertPending, result.State.Pending, assertion)
		case AssertOutbox:
			err = assertStateCount(AssertOutbox, result.State.Outbox, assertion)
		case AssertNotices:
			err = assertStateCount(AssertNotices, result.State.Notices, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func assertTotalPoints(result *Result, a Assertion) error {
	if a.Equals == nil || result.State.TotalPoints == *a.Equals {
		return nil
	}
	return &AssertionError{
		Type:     AssertTotalPoints,
		Expected: fmt.Sprintf("%d points", *a.Equals),
		Actual:   fmt.Sprintf("%d points", result.State.TotalPoints),
		Trace:    result.Trace,
	}
}

func assertCompleted(result *Result, a Assertion) error {
	want := make([]string, len(a.IDs))
	for i, id := range a.IDs {
		want[i] = catalog.NormalizeID(id)
	}
	if slices.Equal(want, result.State.Completed) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCompleted,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", result.State.Completed),
	}
}

// assertRecord compares only the fields the assertion names.
func assertRecord(result *Result, a Assertion) error {
	id := catalog.NormalizeID(a.Track)
	idx := slices.IndexFunc(result.State.Records, func(r RecordState) bool { return r.Track == id })
	if idx < 0 {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record for %s", id),
			Actual:   "no such record",
		}
	}
	rec := result.State.Records[idx]
	want := a.Expect

	var diffs []string
	if want.Completed != nil && rec.Completed != *want.Completed {
		diffs = append(diffs, fmt.Sprintf("completed=%t (want %t)", rec.Completed, *want.Completed))
	}
	if want.Progress != nil && rec.Progress != *want.Progress {
		diffs = append(diffs, fmt.Sprintf("progress=%g (want %g)", rec.Progress, *want.Progress))
	}
	if want.PointsDeducted != nil && rec.PointsDeducted != *want.PointsDeducted {
		diffs = append(diffs, fmt.Sprintf("points_deducted=%d (want %d)", rec.PointsDeducted, *want.PointsDeducted))
	}
	if want.ForwardSeeks != nil && rec.ForwardSeeks != *want.ForwardSeeks {
		diffs = append(diffs, fmt.Sprintf("forward_seeks=%d (want %d)", rec.ForwardSeeks, *want.ForwardSeeks))
	}
	if want.PeakRate != nil && rec.PeakRate != *want.PeakRate {
		diffs = append(diffs, fmt.Sprintf("peak_rate=%g (want %g)", rec.PeakRate, *want.PeakRate))
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertRecord,
		Expected: fmt.Sprintf("record %s to match", id),
		Actual:   strings.Join(diffs, ", "),
	}
}

// assertAwardCount counts traced awards, for one track when Track is set.
func assertAwardCount(result *Result, a Assertion) error {
	id := catalog.NormalizeID(a.Track)
	count := 0
	for _, event := range result.Trace {
		if event.Award != nil && (id == "" || event.Track == id) {
			count++
		}
	}
	if count == *a.Count {
		return nil
	}
	subject := "awards"
	if id != "" {
		subject = "awards for " + id
	}
	return &AssertionError{
		Type:     AssertAwardCount,
		Expected: fmt.Sprintf("%d %s", *a.Count, subject),
		Actual:   fmt.Sprintf("%d %s", count, subject),
		Trace:    result.Trace,
	}
}

func assertVerdictSeen(result *Result, a Assertion) error {
	id := catalog.NormalizeID(a.Track)
	for _, event := range result.Trace {
		if event.Verdict == a.Verdict && (id == "" || event.Track == id) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertVerdictSeen,
		Expected: fmt.Sprintf("verdict %s in trace", a.Verdict),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

func assertConfirmationCount(result *Result, a Assertion) error {
	id := catalog.NormalizeID(a.Track)
	count := 0
	for _, event := range result.Trace {
		if event.Confirmation == a.Confirmation && (id == "" || event.Track == id) {
			count++
		}
	}
	if count == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertConfirmationCount,
		Expected: fmt.Sprintf("%d %s confirmations", *a.Count, a.Confirmation),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    result.Trace,
	}
}

func assertStateCount(kind string, actual int, a Assertion) error {
	if actual == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%d", *a.Count),
		Actual:   fmt.Sprintf("%d", actual),
	}
}
