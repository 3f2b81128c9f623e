package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func withStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}

func setupInstalledApp(t *testing.T, dir, app, tag string) {
	t.Helper()
	releaseDir := filepath.Join(dir, app, "releases", tag, "bin")
	require.NoError(t, os.MkdirAll(releaseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(releaseDir, "app"), []byte("#!/bin/sh\n"), 0o755))

	binDir := filepath.Join(dir, app, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.Symlink(filepath.Join("..", "releases", tag, "bin", "app"), filepath.Join(binDir, "app")))
}

func TestRunVersion_PlainTextNoInstall(t *testing.T) {
	dir := t.TempDir()
	origApp, origInstallRoot, origVerbosity, origJSON := appName, installRoot, verbosity, jsonOutput
	t.Cleanup(func() {
		appName, installRoot, verbosity, jsonOutput = origApp, origInstallRoot, origVerbosity, origJSON
	})
	appName, installRoot, verbosity, jsonOutput = "demoapp", dir, 0, false

	out := withStdout(t, func() {
		err := runVersion(versionCmd, nil)
		require.NoError(t, err)
	})
	require.Empty(t, out)
}

func TestRunVersion_PlainTextInstalled(t *testing.T) {
	dir := t.TempDir()
	setupInstalledApp(t, dir, "demoapp", "v1.2.3")

	origApp, origInstallRoot, origVerbosity, origJSON := appName, installRoot, verbosity, jsonOutput
	t.Cleanup(func() {
		appName, installRoot, verbosity, jsonOutput = origApp, origInstallRoot, origVerbosity, origJSON
	})
	appName, installRoot, verbosity, jsonOutput = "demoapp", dir, 0, false

	out := withStdout(t, func() {
		err := runVersion(versionCmd, nil)
		require.NoError(t, err)
	})
	require.Equal(t, "v1.2.3\n", out)
}

func TestRunVersion_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	setupInstalledApp(t, dir, "demoapp", "v1.2.3")

	origApp, origInstallRoot, origVerbosity, origJSON := appName, installRoot, verbosity, jsonOutput
	t.Cleanup(func() {
		appName, installRoot, verbosity, jsonOutput = origApp, origInstallRoot, origVerbosity, origJSON
	})
	appName, installRoot, verbosity, jsonOutput = "demoapp", dir, 0, true

	out := withStdout(t, func() {
		err := runVersion(versionCmd, nil)
		require.NoError(t, err)
	})

	var got versionJSONOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "v1.2.3", got.Tag)
	require.True(t, got.HasVersion)
	require.Equal(t, filepath.Join(dir, "demoapp", "bin"), got.BinDir)
}
