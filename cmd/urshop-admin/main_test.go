package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_NoCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 2, run(nil, &stdout, &stderr))
	require.Empty(t, stdout.String())
	require.Contains(t, stderr.String(), "usage: urshop-admin")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 2, run([]string{"frobnicate"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), `unknown command "frobnicate"`)
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Zero(t, run([]string{"help"}, &stdout, &stderr))
	require.Contains(t, stdout.String(), "out-of-stock")
	require.Empty(t, stderr.String())
}

func TestRun_VersionWritesBannerToWriter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Zero(t, run([]string{"version"}, &stdout, &stderr))
	require.Contains(t, stdout.String(), "version dev")
	// The banner itself goes to the writer, not the process stdout
	require.Greater(t, len(stdout.String()), len("\nversion dev\n"))
}
