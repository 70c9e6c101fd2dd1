package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIWithInput(t, "", args...)
}

// runCLIWithInput is runCLI with stdin.
func runCLIWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd, closeLog := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	err := executeRoot(context.Background(), cmd, closeLog)
	return out.String(), err
}

func scriptPath(t *testing.T) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("testdata", "mailbox.yaml"))
	require.NoError(t, err)
	return p
}

func TestRunCommand_FixedPolicy(t *testing.T) {
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "transcript.txt")

	out, err := runCLI(t, "run",
		"--policy", "fixed",
		"--action", "north",
		"--script", scriptPath(t),
		"--transcript", transcriptPath,
		"--records-dir", "",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "West of House")
	assert.Contains(t, out, "> north")
	assert.Contains(t, out, "Scored 10 out of 10")

	data, err := os.ReadFile(transcriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WELCOME TO ZORK!")
}

func TestRunCommand_RandomWithRecordsAndSessionLog(t *testing.T) {
	dir := t.TempDir()
	records := filepath.Join(dir, "records")
	sessionLog := filepath.Join(dir, "run-session.jsonl")

	out, err := runCLI(t, "run",
		"--policy", "random",
		"--seed", "3",
		"--script", scriptPath(t),
		"--transcript", "",
		"--records-dir", records,
		"--compress",
		"--session-log", sessionLog,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Scored 10 out of 10")

	entries, err := os.ReadDir(records)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".json.zst"))

	view, err := runCLI(t, "session", "view", sessionLog)
	require.NoError(t, err)
	assert.Contains(t, view, "SESSION TIMELINE")
	assert.Contains(t, view, "scored 10 out of 10")
}

func TestRunCommand_MaxTurns(t *testing.T) {
	out, err := runCLI(t, "run",
		"--policy", "fixed",
		"--script", scriptPath(t),
		"--transcript", "",
		"--records-dir", "",
		"--max-turns", "1",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Scored 0 out of 10")
	assert.Contains(t, out, string(models.ReasonMaxTurns))
}

func TestRunCommand_UnknownPolicyFailsFirst(t *testing.T) {
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "transcript.txt")

	_, err := runCLI(t, "run",
		"--policy", "oracle",
		"--script", scriptPath(t),
		"--transcript", transcriptPath,
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrUnknownPolicy)
	assert.Equal(t, ExitError, exitCode(err))

	_, statErr := os.Stat(transcriptPath)
	assert.True(t, os.IsNotExist(statErr), "no episode should have started")
}

func TestRunCommand_ModelPolicyWithMockEngine(t *testing.T) {
	out, err := runCLI(t, "run",
		"--policy", "model",
		"--engine", "mock",
		"--strategy", "plain",
		"--script", scriptPath(t),
		"--transcript", "",
		"--records-dir", "",
		"--verbose",
	)
	require.NoError(t, err)

	// the mock answers with text that is never a legal action
	assert.Contains(t, out, "is not a valid action")
	assert.Contains(t, out, "--- model output ---")
	assert.Contains(t, out, "Scored 10 out of 10")
}

func TestRunCommand_Batch(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "run",
		"--policy", "random",
		"--seed", "1",
		"--script", scriptPath(t),
		"--transcript", filepath.Join(dir, "t.txt"),
		"--records-dir", "",
		"--episodes", "3",
		"--workers", "2",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "Playing 3 episodes with random (2 workers)")
	assert.Contains(t, out, "BATCH SUMMARY")
	assert.Contains(t, out, "Mean score       10.00")
	for i := 1; i <= 3; i++ {
		_, err := os.Stat(filepath.Join(dir, "t-"+string(rune('0'+i))+".txt"))
		assert.NoError(t, err)
	}
}

func TestRunCommand_HumanBatchSharesInput(t *testing.T) {
	episode := "open mailbox\ntake leaflet\nread leaflet\n"
	out, err := runCLIWithInput(t, episode+episode, "run",
		"--policy", "human",
		"--script", scriptPath(t),
		"--records-dir", "",
		"--episodes", "2",
		"--workers", "4",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "Playing 2 episodes with human (1 workers)")
	assert.NotContains(t, out, "interrupted")
	assert.Equal(t, 2, strings.Count(out, "scored 10 out of 10"))
}

func TestRunCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := `policy:
  name: fixed
  fixed_action: south
environment:
  kind: scripted
  script: ` + scriptPath(t) + `
episode:
  max_turns: 1
output:
  transcript: out/transcript.txt
  records_dir: ""
`
	cfgPath := filepath.Join(dir, ".textplay.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, err := runCLI(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "> south")
	assert.NotContains(t, out, "> north")

	_, err = os.Stat(filepath.Join(dir, "out", "transcript.txt"))
	assert.NoError(t, err)
}

func TestRunCommand_ExhaustedScriptIsEpisodeFailure(t *testing.T) {
	dir := t.TempDir()
	script := `initial:
  observation: A room.
  legal_actions: [wait]
steps:
  - observation: Time passes.
`
	path := filepath.Join(dir, "short.yaml")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	out, err := runCLI(t, "run", "--policy", "fixed", "--action", "wait",
		"--script", path, "--transcript", "", "--records-dir", "")
	require.Error(t, err)

	var failure *EpisodeFailureError
	assert.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, models.ErrEnvironmentProtocol)
	assert.Equal(t, ExitEpisodeFail, exitCode(err))
	assert.Contains(t, out, "Scored 0 out of 0")
}

func TestRunCommand_RejectsArgs(t *testing.T) {
	_, err := runCLI(t, "run", "extra")
	assert.Error(t, err)
}
