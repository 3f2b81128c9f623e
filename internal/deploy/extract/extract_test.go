package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

func writeZip(t *testing.T, path string, entries map[string][]byte, dirs []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, d := range dirs {
		_, err := zw.Create(d + "/")
		require.NoError(t, err)
	}
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func writeTarGz(t *testing.T, path string, entries map[string][]byte, dirs []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, d := range dirs {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: d + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	}
	for name, data := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Size: int64(len(data)), Mode: 0o644}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestUnpackZipBasicExtraction(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")
	writeZip(t, zipPath, map[string][]byte{"hello.txt": []byte("Hello, World!")}, nil)

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	require.NoError(t, Unpack(zipPath, extractDir))

	data, err := os.ReadFile(filepath.Join(extractDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(data))
}

func TestUnpackTarGzExtraction(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "archive.tar.gz")
	writeTarGz(t, tarPath, map[string][]byte{"file.txt": []byte("Hello from tar.gz!")}, nil)

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	require.NoError(t, Unpack(tarPath, extractDir))

	data, err := os.ReadFile(filepath.Join(extractDir, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello from tar.gz!", string(data))
}

func TestUnpackZipSingleRootStripped(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")
	writeZip(t, zipPath, map[string][]byte{
		"myapp-v1.0/file.txt":          []byte("content"),
		"myapp-v1.0/subdir/nested.txt": []byte("nested"),
	}, []string{"myapp-v1.0", "myapp-v1.0/subdir"})

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	require.NoError(t, Unpack(zipPath, extractDir))

	assert.FileExists(t, filepath.Join(extractDir, "file.txt"))
	assert.FileExists(t, filepath.Join(extractDir, "subdir", "nested.txt"))
	assert.NoDirExists(t, filepath.Join(extractDir, "myapp-v1.0"))
}

func TestUnpackTarSingleRootStripped(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "archive.tar.gz")
	writeTarGz(t, tarPath, map[string][]byte{
		"myapp-v1.0/file.txt":          []byte("content"),
		"myapp-v1.0/subdir/nested.txt": []byte("nested"),
	}, []string{"myapp-v1.0", "myapp-v1.0/subdir"})

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	require.NoError(t, Unpack(tarPath, extractDir))

	assert.FileExists(t, filepath.Join(extractDir, "file.txt"))
	assert.FileExists(t, filepath.Join(extractDir, "subdir", "nested.txt"))
	assert.NoDirExists(t, filepath.Join(extractDir, "myapp-v1.0"))
}

func TestUnpackRejectsParentTraversalZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	writeZip(t, zipPath, map[string][]byte{"../evil": []byte("evil content")}, nil)

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	err := Unpack(zipPath, extractDir)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindPathValidation))
}

func TestUnpackRejectsAbsolutePathTar(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, tarPath, map[string][]byte{"/etc/passwd": []byte("evil content")}, nil)

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	err := Unpack(tarPath, extractDir)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindPathValidation))
}

func TestUnpackRejectsSymlinkTar(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "evil.tar.gz")

	f, err := os.Create(tarPath)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "symlink",
		Typeflag: tar.TypeSymlink,
		Linkname: "../target",
		Mode:     0o777,
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	err = Unpack(tarPath, extractDir)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindPathValidation))
}

func TestUnpackZipFileCountLimitExceeded(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "many-files.zip")
	entries := map[string][]byte{
		"file0.txt": []byte("content"),
		"file1.txt": []byte("content"),
		"file2.txt": []byte("content"),
		"file3.txt": []byte("content"),
		"file4.txt": []byte("content"),
	}
	writeZip(t, zipPath, entries, nil)

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	limits := DefaultLimits()
	limits.MaxFileCount = 3
	err := UnpackWithLimits(zipPath, extractDir, limits)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindLimitExceeded))
}

func TestUnpackZipIndividualFileSizeLimitExceeded(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "large-file.zip")
	writeZip(t, zipPath, map[string][]byte{"large.txt": bytes.Repeat([]byte{'x'}, 2000)}, nil)

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	limits := DefaultLimits()
	limits.MaxIndividualFileBytes = 1000
	err := UnpackWithLimits(zipPath, extractDir, limits)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindLimitExceeded))
}

func TestUnpackZipTotalBytesLimitExceeded(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "many-files.zip")
	data := bytes.Repeat([]byte{'x'}, 500)
	entries := map[string][]byte{
		"file0.txt": data, "file1.txt": data, "file2.txt": data, "file3.txt": data, "file4.txt": data,
	}
	writeZip(t, zipPath, entries, nil)

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	limits := DefaultLimits()
	limits.MaxTotalExtractedBytes = 2000
	err := UnpackWithLimits(zipPath, extractDir, limits)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindLimitExceeded))
}

func TestUnpackUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.rar")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))

	extractDir := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))

	err := Unpack(path, extractDir)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindUnsupportedFormat))
}
