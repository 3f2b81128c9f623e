// Package verify parses SHA-256 digest manifests (SHA256SUMS-style) and
// verifies a downloaded file against a named entry.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

const (
	sha256HexLength = 64
	minLineLength   = sha256HexLength + 2 // hex + 2-byte separator
)

// ParseManifest parses a digest manifest's text into a case-preserving map
// from filename to lowercase hex digest. Each non-empty, non-comment line
// must begin with a 64-character hex digest followed by either "  "
// (two-space, text mode) or " *" (space-asterisk, binary mode) and a
// non-empty filename. A trailing '\r' is tolerated; leading whitespace is
// stripped; '#' comment lines and blank lines are skipped.
func ParseManifest(text string) (map[string]string, error) {
	entries := make(map[string]string)

	for lineNo, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if len(trimmed) < minLineLength {
			return nil, shipwrighterrors.ManifestParse("verify.ParseManifest",
				fmt.Sprintf("line %d: too short: %q", lineNo+1, line))
		}

		digest := trimmed[:sha256HexLength]
		if !isHex(digest) {
			return nil, shipwrighterrors.ManifestParse("verify.ParseManifest",
				fmt.Sprintf("line %d: not a 64-character hex digest: %q", lineNo+1, line))
		}

		sep := trimmed[sha256HexLength : sha256HexLength+2]
		if sep != "  " && sep != " *" {
			return nil, shipwrighterrors.ManifestParse("verify.ParseManifest",
				fmt.Sprintf("line %d: expected separator after digest: %q", lineNo+1, line))
		}

		filename := trimmed[sha256HexLength+2:]
		if filename == "" {
			return nil, shipwrighterrors.ManifestParse("verify.ParseManifest",
				fmt.Sprintf("line %d: empty filename: %q", lineNo+1, line))
		}

		entries[filename] = strings.ToLower(digest)
	}

	return entries, nil
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// SHA256File computes the lowercase hex SHA-256 digest of the file at path.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is a local temp/download file controlled by the pipeline
	if err != nil {
		return "", shipwrighterrors.IOWrap(err, "verify.SHA256File", "failed to open file")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", shipwrighterrors.IOWrap(err, "verify.SHA256File", "failed to hash file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FetchAndVerify fetches the manifest at manifestURL, looks up assetName
// (exact, case-sensitive), and compares the file at filePath's SHA-256
// against the manifest entry case-insensitively.
func FetchAndVerify(ctx context.Context, client *http.Client, manifestURL, token, assetName, filePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return shipwrighterrors.WrapSafe(err, shipwrighterrors.KindTransport, "verify.FetchAndVerify", "failed to build manifest request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return shipwrighterrors.WrapSafe(err, shipwrighterrors.KindTransport, "verify.FetchAndVerify", "failed to fetch manifest")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return shipwrighterrors.Newf(shipwrighterrors.KindTransport, "manifest fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return shipwrighterrors.IOWrap(err, "verify.FetchAndVerify", "failed to read manifest body")
	}

	entries, err := ParseManifest(string(body))
	if err != nil {
		return err
	}

	expected, ok := entries[assetName]
	if !ok {
		return shipwrighterrors.NotFound("verify.FetchAndVerify", fmt.Sprintf("no manifest entry for %q", assetName))
	}

	var actual string
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		digest, err := SHA256File(filePath)
		if err != nil {
			return err
		}
		actual = digest
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if !strings.EqualFold(expected, actual) {
		return shipwrighterrors.ChecksumMismatch("verify.FetchAndVerify", expected, actual)
	}
	return nil
}
