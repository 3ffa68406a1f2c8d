package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateHome points HOME at a temp directory so no real ~/.cultsim config is read.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"CULTSIM_SEED", "CULTSIM_STREAMS", "CULTSIM_LOG_LEVEL", "CULTSIM_LOG_FORMAT", "CULTSIM_ADDR"} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	isolateHome(t)
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&app{})
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cultsim version "+version+"\n", out)

	out, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"`+version+`"}`, out)
}

func TestUnbiasedCSV(t *testing.T) {
	out, errOut, err := execute(t, "unbiased", "--n", "100", "--generations", "5", "--replicates", "1", "--seed", "42")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "run1", lines[0])
	assert.Contains(t, errOut, "unbiased: 1 replicates x 5 generations, seed 42")
	assert.Contains(t, errOut, "fixation generation per run")

	again, _, err := execute(t, "unbiased", "--n", "100", "--generations", "5", "--replicates", "1", "--seed", "42")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestAliases(t *testing.T) {
	out, _, err := execute(t, "bias", "--n", "30", "--generations", "3", "--replicates", "2", "--seed", "1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "run1,run2\n"))

	out, errOut, err := execute(t, "walk", "--bias", "0.9", "--generations", "4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "run1\n"))
	assert.Contains(t, errOut, "effective step-up probability: 1.0000")
}

func TestDirectionalNoNoise(t *testing.T) {
	out, errOut, err := execute(t, "directional", "--x0", "1", "--c", "0.5", "--generations", "3", "--mean")
	require.NoError(t, err)
	assert.Equal(t, "run1,mean\n1.0,1.0\n1.5,1.5\n2.0,2.0\n", out)
	assert.Contains(t, errOut, "total change +1.0000")
}

func TestJSONOutput(t *testing.T) {
	out, _, err := execute(t, "--json", "walk", "--generations", "2", "--replicates", "3")
	require.NoError(t, err)

	var res struct {
		Model string `json:"model"`
		Seed  int64  `json:"seed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "random-walk", res.Model)
	assert.Equal(t, int64(1055), res.Seed, "configured preset seed")
}

func TestOutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.csv")
	out, _, err := execute(t, "walk", "--generations", "3", "--out", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "run1\n"))
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unbiased:\n  generations: 2\n  replicates: 4\n  seed: 3\n"), 0644))

	out, _, err := execute(t, "--config", path, "unbiased")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "run1,run2,run3,run4", lines[0])
}

func TestTraceLogsGenerations(t *testing.T) {
	_, errOut, err := execute(t, "--log-level", "trace", "walk", "--generations", "3")
	require.NoError(t, err)
	assert.Contains(t, errOut, "level=TRACE")
	assert.Contains(t, errOut, "generation=2")
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid probability", []string{"unbiased", "--p0", "2"}},
		{"zero generations", []string{"walk", "--generations", "0"}},
		{"unknown streams", []string{"walk", "--streams", "twisted"}},
		{"unknown noise", []string{"directional", "--noise", "brown", "--sigma", "1"}},
		{"bad log level", []string{"--log-level", "loud", "walk"}},
		{"missing config", []string{"--config", "/nonexistent/cultsim.yaml", "walk"}},
		{"extra args", []string{"walk", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
