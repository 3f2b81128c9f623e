package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	doc, err := Load(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "myapp", "state.json")

	original := &Document{
		LatestTag:    "v1.2.3",
		ETag:         `"abc123"`,
		LastModified: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		InstalledAt:  time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
	}

	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, original.LatestTag, loaded.LatestTag)
	require.Equal(t, original.ETag, loaded.ETag)
	require.True(t, original.LastModified.Equal(loaded.LastModified))
	require.True(t, original.InstalledAt.Equal(loaded.InstalledAt))
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "state.json")

	require.NoError(t, Save(path, &Document{LatestTag: "v1.0.0"}))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", loaded.LatestTag)
}

func TestLoadParseErrorIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, Save(path, &Document{LatestTag: "v1.0.0"}))

	// Corrupt the file.
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
