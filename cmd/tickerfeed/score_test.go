package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScoreCmd(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"score", "--keywords", ""}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestScoreCommand(t *testing.T) {
	out := runScoreCmd(t, "", "Fraud scandal widens as investigation begins")

	assert.Contains(t, out, "fraud")
	assert.Contains(t, out, "points: 30 (min 15)")
	assert.Contains(t, out, "verdict: admitted")
	assert.Contains(t, out, "trend: bullish")
}

func TestScoreCommandReadsStdin(t *testing.T) {
	out := runScoreCmd(t, "a quiet day with nothing to report")

	assert.Contains(t, out, "points: 0")
	assert.Contains(t, out, "verdict: rejected")
}
