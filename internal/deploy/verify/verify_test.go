package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

func TestParseManifestTextMode(t *testing.T) {
	text := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85  myapp.tar.gz\n"
	entries, err := ParseManifest(text)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85", entries["myapp.tar.gz"])
}

func TestParseManifestBinaryModeAndComments(t *testing.T) {
	text := "# comment\n\nE3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B85 *myapp.zip\r\n"
	entries, err := ParseManifest(text)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85", entries["myapp.zip"])
}

func TestParseManifestRejectsShortLine(t *testing.T) {
	_, err := ParseManifest("deadbeef  short.txt\n")
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindManifestParse))
}

func TestParseManifestRejectsBadSeparator(t *testing.T) {
	digest := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85"
	_, err := ParseManifest(digest + "-myapp.tar.gz\n")
	require.Error(t, err)
}

func TestParseManifestRejectsEmptyFilename(t *testing.T) {
	digest := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85"
	_, err := ParseManifest(digest + "  \n")
	require.Error(t, err)
}

func TestSHA256FileAndFetchAndVerify(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "myapp.tar.gz")
	require.NoError(t, os.WriteFile(assetPath, []byte("fake archive contents"), 0o600))

	digest, err := SHA256File(assetPath)
	require.NoError(t, err)

	manifest := digest + "  myapp.tar.gz\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(manifest))
	}))
	defer srv.Close()

	err = FetchAndVerify(context.Background(), srv.Client(), srv.URL, "", "myapp.tar.gz", assetPath)
	require.NoError(t, err)
}

func TestFetchAndVerifyMismatch(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "myapp.tar.gz")
	require.NoError(t, os.WriteFile(assetPath, []byte("fake archive contents"), 0o600))

	zeroDigest := "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	manifest := zeroDigest + "  myapp.tar.gz\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(manifest))
	}))
	defer srv.Close()

	err := FetchAndVerify(context.Background(), srv.Client(), srv.URL, "", "myapp.tar.gz", assetPath)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindChecksumMismatch))
}

func TestFetchAndVerifyAssetNotInManifest(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "myapp.tar.gz")
	require.NoError(t, os.WriteFile(assetPath, []byte("x"), 0o600))

	digest, err := SHA256File(assetPath)
	require.NoError(t, err)
	manifest := digest + "  other.tar.gz\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(manifest))
	}))
	defer srv.Close()

	err = FetchAndVerify(context.Background(), srv.Client(), srv.URL, "", "myapp.tar.gz", assetPath)
	require.Error(t, err)
	assert.True(t, shipwrighterrors.IsKind(err, shipwrighterrors.KindNotFound))
}
