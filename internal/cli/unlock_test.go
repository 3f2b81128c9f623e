package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sundeck-sh/shipwright/internal/deploy/lock"
)

func TestRunUnlock_RemovesExistingLock(t *testing.T) {
	dir := t.TempDir()

	origApp, origInstallRoot := appName, installRoot
	t.Cleanup(func() { appName, installRoot = origApp, origInstallRoot })
	appName = "demoapp"
	installRoot = dir
	unlockOpts.stateDirectory = dir
	t.Cleanup(func() { unlockOpts.stateDirectory = "" })

	lockPath := lock.Path("demoapp", dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))
	require.NoError(t, os.WriteFile(lockPath, []byte("pid"), 0o644))

	err := runUnlock(unlockCmd, nil)
	require.NoError(t, err)

	_, statErr := os.Stat(lockPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunUnlock_NoLockPresent(t *testing.T) {
	dir := t.TempDir()

	origApp, origInstallRoot := appName, installRoot
	t.Cleanup(func() { appName, installRoot = origApp, origInstallRoot })
	appName = "demoapp"
	installRoot = dir
	unlockOpts.stateDirectory = dir
	t.Cleanup(func() { unlockOpts.stateDirectory = "" })

	err := runUnlock(unlockCmd, nil)
	require.NoError(t, err)
}

func TestRunUnlock_RejectsMissingAppName(t *testing.T) {
	origApp, origInstallRoot := appName, installRoot
	t.Cleanup(func() { appName, installRoot = origApp, origInstallRoot })
	appName = ""
	installRoot = t.TempDir()
	unlockOpts.stateDirectory = t.TempDir()
	t.Cleanup(func() { unlockOpts.stateDirectory = "" })

	err := runUnlock(unlockCmd, nil)
	require.Error(t, err)
}
