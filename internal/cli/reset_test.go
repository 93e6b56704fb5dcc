package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t, "")

	_, _, err := env.run(t, "", "reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--yes")
}

func TestResetClearsPoints(t *testing.T) {
	env := newTestEnv(t, "")
	_, _, err := env.run(t, telemetry("challenge-3", 149, 140), "listen")
	require.NoError(t, err)

	out, _, err := env.run(t, "", "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset 1 completions and 300 points")

	out, _, err = env.run(t, "", "--format", "json", "status")
	require.NoError(t, err)
	var status StatusResult
	decodeData(t, out, &status)
	assert.Equal(t, 0, status.TotalPoints)
	assert.Empty(t, status.Completed)

	out, _, err = env.run(t, "", "--format", "json", "reset", "-y")
	require.NoError(t, err)
	var result ResetResult
	decodeData(t, out, &result)
	assert.Equal(t, ResetResult{}, result)
}
