package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/earworm/internal/award"
	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/engine"
	"github.com/roach88/earworm/internal/rules"
)

// Scenario defines one listening scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules overrides fields of the default rule table.
	Rules *RuleOverrides `yaml:"rules,omitempty"`

	// Catalog replaces the built-in catalog when present.
	Catalog []catalog.Challenge `yaml:"catalog,omitempty"`

	// SessionPrefix prefixes the deterministic session tokens.
	// Defaults to "session".
	SessionPrefix string `yaml:"session_prefix,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// RuleOverrides lists the rule fields a scenario may change. Nil fields
// keep the default.
type RuleOverrides struct {
	CompletionThresholdPct  *float64            `yaml:"completion_threshold_pct,omitempty"`
	MinSecondsBeforeAward   *float64            `yaml:"min_seconds_before_award,omitempty"`
	AllowReearnOnReplay     *bool               `yaml:"allow_reearn_on_replay,omitempty"`
	AwardOnFastRate         *bool               `yaml:"award_on_fast_rate,omitempty"`
	RequireActiveTrackID    *bool               `yaml:"require_active_track_id,omitempty"`
	ForwardSeekThresholdSec *float64            `yaml:"forward_seek_threshold_sec,omitempty"`
	DeductOnForwardSeek     *bool               `yaml:"deduct_on_forward_seek,omitempty"`
	ForwardSeekPenaltyPct   *float64            `yaml:"forward_seek_penalty_pct,omitempty"`
	RatePenalties           []rules.RatePenalty `yaml:"rate_penalties,omitempty"`
}

// Apply returns base with the overrides applied.
func (o *RuleOverrides) Apply(base rules.Table) rules.Table {
	if o == nil {
		return base
	}
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.CompletionThresholdPct, o.CompletionThresholdPct)
	set(&base.MinSecondsBeforeAward, o.MinSecondsBeforeAward)
	setBool(&base.AllowReearnOnReplay, o.AllowReearnOnReplay)
	setBool(&base.AwardOnFastRate, o.AwardOnFastRate)
	setBool(&base.RequireActiveTrackID, o.RequireActiveTrackID)
	set(&base.ForwardSeekThresholdSec, o.ForwardSeekThresholdSec)
	setBool(&base.DeductOnForwardSeek, o.DeductOnForwardSeek)
	set(&base.ForwardSeekPenaltyPct, o.ForwardSeekPenaltyPct)
	if o.RatePenalties != nil {
		base.RatePenalties = slices.Clone(o.RatePenalties)
	}
	return base
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Activate string        `yaml:"activate,omitempty"`
	Play     *PlayStep     `yaml:"play,omitempty"`
	Position *PositionStep `yaml:"position,omitempty"`
	Seek     *SeekStep     `yaml:"seek,omitempty"`
	Rate     float64       `yaml:"rate,omitempty"`
	End      bool          `yaml:"end,omitempty"`
	Progress *ProgressStep `yaml:"progress,omitempty"`
	Reset    bool          `yaml:"reset,omitempty"`
	FailNext string        `yaml:"fail_next,omitempty"`
	Offline  bool          `yaml:"offline,omitempty"`
	Restart  bool          `yaml:"restart,omitempty"`
}

// PlayStep reports positions From, From+1, ... To. Duration defaults to
// the catalog duration of Track.
type PlayStep struct {
	Track    string  `yaml:"track"`
	From     float64 `yaml:"from"`
	To       float64 `yaml:"to"`
	Duration float64 `yaml:"duration,omitempty"`
}

// PositionStep reports one position. Duration defaults to the catalog
// duration of Track.
type PositionStep struct {
	Track    string  `yaml:"track"`
	At       float64 `yaml:"at"`
	Duration float64 `yaml:"duration,omitempty"`
}

// SeekStep seeks Track, or the active track when Track is empty.
type SeekStep struct {
	Track string  `yaml:"track,omitempty"`
	To    float64 `yaml:"to"`
}

// ProgressStep sets the stored progress of Track.
type ProgressStep struct {
	Track string  `yaml:"track"`
	Pct   float64 `yaml:"pct"`
}

// kind names the step's action, or "" when no field or several are set.
func (s Step) kind() string {
	var kinds []string
	if s.Activate != "" {
		kinds = append(kinds, "activate")
	}
	if s.Play != nil {
		kinds = append(kinds, "play")
	}
	if s.Position != nil {
		kinds = append(kinds, "position")
	}
	if s.Seek != nil {
		kinds = append(kinds, "seek")
	}
	if s.Rate != 0 {
		kinds = append(kinds, "rate")
	}
	if s.End {
		kinds = append(kinds, "end")
	}
	if s.Progress != nil {
		kinds = append(kinds, "progress")
	}
	if s.Reset {
		kinds = append(kinds, "reset")
	}
	if s.FailNext != "" {
		kinds = append(kinds, "fail_next")
	}
	if s.Offline {
		kinds = append(kinds, "offline")
	}
	if s.Restart {
		kinds = append(kinds, "restart")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Track        string        `yaml:"track,omitempty"`
	Equals       *int          `yaml:"equals,omitempty"`
	Count        *int          `yaml:"count,omitempty"`
	IDs          []string      `yaml:"ids,omitempty"`
	Verdict      string        `yaml:"verdict,omitempty"`
	Confirmation string        `yaml:"confirmation,omitempty"`
	Expect       *RecordExpect `yaml:"expect,omitempty"`
}

// RecordExpect lists record fields to compare. Nil fields are not checked.
type RecordExpect struct {
	Completed      *bool    `yaml:"completed,omitempty"`
	Progress       *float64 `yaml:"progress,omitempty"`
	PointsDeducted *int     `yaml:"points_deducted,omitempty"`
	ForwardSeeks   *int     `yaml:"forward_seeks,omitempty"`
	PeakRate       *float64 `yaml:"peak_rate,omitempty"`
}

// Assertion type constants.
const (
	AssertTotalPoints       = "total_points"
	AssertCompleted         = "completed"
	AssertRecord            = "record"
	AssertAwardCount        = "award_count"
	AssertVerdictSeen       = "verdict_seen"
	AssertConfirmationCount = "confirmation_count"
	AssertPending           = "pending"
	AssertOutbox            = "outbox"
	AssertNotices           = "notices"
)

var knownVerdicts = []award.Verdict{
	award.VerdictIgnored,
	award.VerdictSpurious,
	award.VerdictFrozen,
	award.VerdictDisqualified,
	award.VerdictProgress,
	award.VerdictAwarded,
}

var knownConfirmations = []engine.Confirmation{
	engine.ConfirmationConfirmed,
	engine.ConfirmationRolledBack,
	engine.ConfirmationAbandoned,
	engine.ConfirmationStale,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarioDir loads every *.yaml and *.yml file in dir, sorted by
// file name.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if len(s.Catalog) > 0 {
		if _, err := catalog.New(s.Catalog); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}

	if _, err := rules.New(s.Rules.Apply(rules.Default())); err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	switch step.kind() {
	case "":
		return fmt.Errorf("steps[%d]: exactly one action is required", index)
	case "play":
		if step.Play.Track == "" {
			return fmt.Errorf("steps[%d]: track is required for play", index)
		}
		if step.Play.To < step.Play.From {
			return fmt.Errorf("steps[%d]: play range %g..%g is empty", index, step.Play.From, step.Play.To)
		}
	case "position":
		if step.Position.Track == "" {
			return fmt.Errorf("steps[%d]: track is required for position", index)
		}
	case "progress":
		if step.Progress.Track == "" {
			return fmt.Errorf("steps[%d]: track is required for progress", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTotalPoints:
		if a.Equals == nil {
			return fmt.Errorf("assertions[%d]: equals is required for total_points", index)
		}
	case AssertCompleted:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for completed (use [] for none)", index)
		}
	case AssertRecord:
		if a.Track == "" {
			return fmt.Errorf("assertions[%d]: track is required for record", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for record", index)
		}
	case AssertAwardCount, AssertPending, AssertOutbox, AssertNotices:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertVerdictSeen:
		if !slices.Contains(knownVerdicts, award.Verdict(a.Verdict)) {
			return fmt.Errorf("assertions[%d]: unknown verdict %q", index, a.Verdict)
		}
	case AssertConfirmationCount:
		if !slices.Contains(knownConfirmations, engine.Confirmation(a.Confirmation)) {
			return fmt.Errorf("assertions[%d]: unknown confirmation %q", index, a.Confirmation)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for confirmation_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
