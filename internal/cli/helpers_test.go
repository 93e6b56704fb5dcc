package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv is an isolated config file and database for one test.
type testEnv struct {
	dir    string
	config string
	db     string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:    dir,
		config: filepath.Join(dir, "config.toml"),
		db:     filepath.Join(dir, "data", "earworm.db"),
	}

	body := fmt.Sprintf(`[paths]
database = %q

[sync]
mode = "none"

[logging]
level = "error"
%s`, env.db, extra)
	require.NoError(t, os.WriteFile(env.config, []byte(body), 0644))
	return env
}

// run executes the root command with the env's config prepended.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.config}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// decodeData unmarshals the data field of a JSON CLIResponse into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// telemetry renders a listen session that plays id from 1 to `to` seconds.
func telemetry(id string, duration float64, to int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"type":"play","track":%q}`+"\n", id)
	for pos := 1; pos <= to; pos++ {
		fmt.Fprintf(&b, `{"type":"position","track":%q,"position":%d,"duration":%g}`+"\n", id, pos, duration)
	}
	b.WriteString(`{"type":"end"}` + "\n")
	return b.String()
}
