package rules

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// document mirrors #Rules in schema.cue.
type document struct {
	CompletionThresholdPct  float64       `json:"completion_threshold_pct"`
	MinSecondsBeforeAward   float64       `json:"min_seconds_before_award"`
	AllowReearnOnReplay     bool          `json:"allow_reearn_on_replay"`
	AwardOnFastRate         bool          `json:"award_on_fast_rate"`
	RequireActiveTrackID    bool          `json:"require_active_track_id"`
	ForwardSeekThresholdSec float64       `json:"forward_seek_threshold_sec"`
	DeductOnForwardSeek     bool          `json:"deduct_on_forward_seek"`
	ForwardSeekPenaltyPct   float64       `json:"forward_seek_penalty_pct"`
	RatePenalties           []RatePenalty `json:"rate_penalties"`
}

func (d document) table() Table {
	return Table{
		CompletionThresholdPct:  d.CompletionThresholdPct,
		MinSecondsBeforeAward:   d.MinSecondsBeforeAward,
		AllowReearnOnReplay:     d.AllowReearnOnReplay,
		AwardOnFastRate:         d.AwardOnFastRate,
		RequireActiveTrackID:    d.RequireActiveTrackID,
		ForwardSeekThresholdSec: d.ForwardSeekThresholdSec,
		DeductOnForwardSeek:     d.DeductOnForwardSeek,
		ForwardSeekPenaltyPct:   d.ForwardSeekPenaltyPct,
		RatePenalties:           d.RatePenalties,
	}
}

// LoadFile reads a CUE rule file and returns the validated table.
func LoadFile(path string) (Table, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read rules: %w", err)
	}
	return Compile(src, path)
}

// Compile unifies the `rules` struct in src with the embedded schema,
// fills defaults, and validates the resulting table.
// Uses the CUE Go API directly (no CLI subprocess).
func Compile(src []byte, filename string) (Table, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Table{}, fmt.Errorf("compile rules schema: %w", err)
	}

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return Table{}, formatCUEError(err)
	}

	rulesVal := file.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return Table{}, &ConfigError{
			Code:    ErrCodeMissingRules,
			Field:   "rules",
			Message: "rules block is required",
			Pos:     file.Pos(),
		}
	}

	merged := schema.LookupPath(cue.ParsePath("#Rules")).Unify(rulesVal)
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return Table{}, formatCUEError(err)
	}

	var doc document
	if err := merged.Decode(&doc); err != nil {
		return Table{}, formatCUEError(err)
	}

	return New(doc.table())
}

// formatCUEError keeps the first error and its source position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	ce := &ConfigError{Code: ErrCodeCUE, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
