package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/earworm/internal/rules"
)

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
rules:
  allow_reearn_on_replay: true
  rate_penalties:
    - { threshold: 1.5, penalty: 0.2 }
catalog:
  - id: t1
    title: Track One
    duration: 120
    points: 300
steps:
  - activate: t1
  - play: { track: t1, from: 1, to: 10 }
  - seek: { to: 100 }
  - rate: 2
  - position: { track: t1, at: 101, duration: 120 }
  - end: true
assertions:
  - type: total_points
    equals: 0
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	require.Len(t, scenario.Catalog, 1)
	assert.Equal(t, 300, scenario.Catalog[0].BasePoints)
	require.Len(t, scenario.Steps, 6)
	assert.Equal(t, "t1", scenario.Steps[0].Activate)
	assert.Equal(t, 10.0, scenario.Steps[1].Play.To)
	assert.Equal(t, 100.0, scenario.Steps[2].Seek.To)
	assert.Equal(t, 2.0, scenario.Steps[3].Rate)
	assert.True(t, scenario.Steps[5].End)

	tbl := scenario.Rules.Apply(rules.Default())
	assert.True(t, tbl.AllowReearnOnReplay)
	require.Len(t, tbl.RatePenalties, 1)
	assert.Equal(t, 0.2, tbl.RatePenalties[0].Penalty)
	assert.Equal(t, 90.0, tbl.CompletionThresholdPct, "unset fields keep defaults")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: d\nstep: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{end: true}]\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\nsteps: [{end: true}]\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ndescription: d\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: x\ndescription: d\nsteps: [{end: true}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "two actions in one step",
			yaml:    "name: x\ndescription: d\nsteps: [{end: true, reset: true}]\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "steps[0]: exactly one action is required",
		},
		{
			name:    "empty step",
			yaml:    "name: x\ndescription: d\nsteps: [{}]\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "steps[0]: exactly one action is required",
		},
		{
			name:    "backwards play",
			yaml:    "name: x\ndescription: d\nsteps: [{play: {track: t1, from: 10, to: 1}}]\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "steps[0]: play range 10..1 is empty",
		},
		{
			name:    "play without track",
			yaml:    "name: x\ndescription: d\nsteps: [{play: {from: 1, to: 2}}]\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "steps[0]: track is required for play",
		},
		{
			name:    "bad catalog",
			yaml:    "name: x\ndescription: d\ncatalog: [{id: t1, duration: 0}]\nsteps: [{end: true}]\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "catalog:",
		},
		{
			name:    "conflicting rules",
			yaml:    "name: x\ndescription: d\nrules: {award_on_fast_rate: false}\nsteps: [{end: true}]\nassertions: [{type: pending, count: 0}]\n",
			wantErr: "rules:",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\nsteps: [{end: true}]\nassertions: [{type: nope}]\n",
			wantErr: `assertions[0]: unknown assertion type "nope"`,
		},
		{
			name:    "total without equals",
			yaml:    "name: x\ndescription: d\nsteps: [{end: true}]\nassertions: [{type: total_points}]\n",
			wantErr: "assertions[0]: equals is required",
		},
		{
			name:    "record without expect",
			yaml:    "name: x\ndescription: d\nsteps: [{end: true}]\nassertions: [{type: record, track: t1}]\n",
			wantErr: "assertions[0]: expect is required",
		},
		{
			name:    "unknown verdict",
			yaml:    "name: x\ndescription: d\nsteps: [{end: true}]\nassertions: [{type: verdict_seen, verdict: great}]\n",
			wantErr: `assertions[0]: unknown verdict "great"`,
		},
		{
			name:    "negative count",
			yaml:    "name: x\ndescription: d\nsteps: [{end: true}]\nassertions: [{type: outbox, count: -1}]\n",
			wantErr: "assertions[0]: count must be non-negative",
		},
		{
			name:    "unknown confirmation",
			yaml:    "name: x\ndescription: d\nsteps: [{end: true}]\nassertions: [{type: confirmation_count, confirmation: maybe, count: 1}]\n",
			wantErr: `assertions[0]: unknown confirmation "maybe"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarioDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(validScenario), 0644))
	second := []byte("name: a\ndescription: d\nsteps: [{end: true}]\nassertions: [{type: pending, count: 0}]\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), second, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "golden"), 0755))

	scenarios, err := LoadScenarioDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, "test_scenario", scenarios[1].Name)
}

func TestLoadScenarioDir_ReportsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: x\n"), 0644))

	_, err := LoadScenarioDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}
