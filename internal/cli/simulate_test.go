package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func TestSimulateStoresResults(t *testing.T) {
	env := newTestEnv(t, "")

	out, _, err := env.run(t, "", "simulate", filepath.Join(harnessScenarios, "clean_completion.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: clean_completion")
	assert.Contains(t, out, "position t1 verdict=awarded points=300")
	assert.Contains(t, out, "confirmation t1 confirmation=confirmed")
	assert.Contains(t, out, "Total points: 300 (completed 1, awaiting confirmation 0)")

	out, _, err = env.run(t, "", "--format", "json", "status")
	require.NoError(t, err)
	var status StatusResult
	decodeData(t, out, &status)
	assert.Equal(t, 300, status.TotalPoints)
}

func TestSimulateAssertionsSeeExistingState(t *testing.T) {
	env := newTestEnv(t, "")
	scenario := filepath.Join(harnessScenarios, "seek_and_rate_penalty.yaml")

	_, _, err := env.run(t, "", "simulate", scenario)
	require.NoError(t, err)

	// t1 is already completed, so the second run earns nothing new.
	out, _, err := env.run(t, "", "simulate", scenario)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Assertion failed")

	_, _, err = env.run(t, "", "simulate", "--skip-assertions", scenario)
	require.NoError(t, err)
}

func TestSimulateJSON(t *testing.T) {
	env := newTestEnv(t, "")

	out, _, err := env.run(t, "", "--format", "json", "simulate", filepath.Join(harnessScenarios, "rollback_and_replay.yaml"))
	require.NoError(t, err)

	var result SimulateResult
	decodeData(t, out, &result)
	assert.Equal(t, "rollback_and_replay", result.Scenario)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 300, result.State.TotalPoints)
	assert.Equal(t, 1, result.State.Notices)
	assert.NotEmpty(t, result.Trace)
}

func TestSimulateBadScenario(t *testing.T) {
	env := newTestEnv(t, "")
	path := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\n"), 0644))

	_, _, err := env.run(t, "", "simulate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}
