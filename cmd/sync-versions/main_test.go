package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/pyplots-catalog/internal/versionsync"
)

const plotlyScript = `""" pyplots.ai
scatter-basic: Basic Scatter Plot
Library: plotly unknown | Python 3.13
Quality: 88/100 | Created: 2025-01-10
"""
`

func runArgs(t *testing.T, args ...string) (int, string) {
	t.Helper()
	t.Setenv("PYPLOTS_LOG_MODE", "nop")
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String() + errOut.String()
}

func TestRunRewritesHeaders(t *testing.T) {
	root := t.TempDir()
	rel := filepath.Join("plots", "scatter-basic", "implementations", "plotly.py")
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.Dir(rel)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(plotlyScript), 0o644))

	code, out := runArgs(t, "--root", root, "--skip-db", "--version", "plotly=5.24.1")
	assert.Equal(t, versionsync.ExitOK, code, out)

	got, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	assert.Contains(t, string(got), "Library: plotly 5.24.1 | Python 3.13")
}

func TestRunSetupFailuresUseTheirOwnCode(t *testing.T) {
	root := t.TempDir()
	cases := map[string][]string{
		"unknown flag":     {"--no-such-flag"},
		"missing config":   {"--config", filepath.Join(root, "absent.yaml")},
		"malformed pair":   {"--root", root, "--version", "plotly"},
		"unknown override": {"--root", root, "--version", "ggplot=3.5.0"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			code, out := runArgs(t, args...)
			assert.Equal(t, versionsync.ExitSetupFailed, code, out)
		})
	}
}
