package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRulesValidate(t *testing.T) {
	env := newTestEnv(t, "")
	path := writeRules(t, env.dir, `rules: {
	completion_threshold_pct: 85
	rate_penalties: [{threshold: 1.5, penalty: 0.1}]
}
`)

	out, _, err := env.run(t, "", "rules", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, _, err = env.run(t, "", "--format", "json", "rules", "validate", path)
	require.NoError(t, err)
	var view RulesView
	decodeData(t, out, &view)
	assert.Equal(t, 85.0, view.CompletionThresholdPct)
	assert.Equal(t, []RatePenaltyView{{Threshold: 1.5, Penalty: 0.1}}, view.RatePenalties)
	assert.True(t, view.AwardOnFastRate, "unset fields keep defaults")
}

func TestRulesValidateConflictingPolicy(t *testing.T) {
	env := newTestEnv(t, "")
	path := writeRules(t, env.dir, `rules: {
	award_on_fast_rate: false
}
`)

	out, _, err := env.run(t, "", "rules", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [CONFLICTING_RATE_POLICY]")
}

func TestRulesValidateMissingFile(t *testing.T) {
	env := newTestEnv(t, "")
	_, _, err := env.run(t, "", "rules", "validate", filepath.Join(env.dir, "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRulesShowDefaults(t *testing.T) {
	env := newTestEnv(t, "")

	out, _, err := env.run(t, "", "rules", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Rules: built-in")
	assert.Contains(t, out, "completion_threshold_pct")
	assert.Contains(t, out, "rate >= 2x")
	assert.Contains(t, out, "0.15")
}

func TestRulesShowConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, "rules: {allow_reearn_on_replay: true}\n")
	env := newTestEnv(t, "")
	body := fmt.Sprintf("[paths]\ndatabase = %q\nrules = %q\n\n[sync]\nmode = \"none\"\n", env.db, path)
	require.NoError(t, os.WriteFile(env.config, []byte(body), 0644))

	out, _, err := env.run(t, "", "--format", "json", "rules", "show")
	require.NoError(t, err)
	var view RulesView
	decodeData(t, out, &view)
	assert.Equal(t, path, view.Source)
	assert.True(t, view.AllowReearnOnReplay)
}
