// Package version discovers the currently active release tag by examining
// the activation symlinks in an app's bin directory.
package version

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

// CurrentTag looks under <installRoot>/<app>/bin/ for symlinks that point
// into "../releases/<tag>/..." and returns the tag from the
// lexicographically last symlink basename. Returns "", false when the bin
// directory is missing, empty, or contains no qualifying symlink.
func CurrentTag(installRoot, app string) (string, bool, error) {
	binDir := filepath.Join(installRoot, app, "bin")

	info, err := os.Stat(binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, shipwrighterrors.IOWrap(err, "version.CurrentTag", "failed to stat bin directory")
	}
	if !info.IsDir() {
		return "", false, nil
	}

	entries, err := os.ReadDir(binDir)
	if err != nil {
		return "", false, shipwrighterrors.IOWrap(err, "version.CurrentTag", "failed to list bin directory")
	}

	type candidate struct {
		name string
		tag  string
	}
	var candidates []candidate

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		path := filepath.Join(binDir, entry.Name())
		target, err := os.Readlink(path)
		if err != nil {
			return "", false, shipwrighterrors.IOWrap(err, "version.CurrentTag", "failed to read symlink target")
		}

		targetPath := target
		if !filepath.IsAbs(target) {
			targetPath = filepath.Join(binDir, target)
		}

		tag, ok := extractTagFromPath(targetPath)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{name: entry.Name(), tag: tag})
	}

	if len(candidates) == 0 {
		return "", false, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].name < candidates[j].name })
	return candidates[len(candidates)-1].tag, true, nil
}

// extractTagFromPath finds a "releases" path component and returns the
// component immediately following it.
func extractTagFromPath(path string) (string, bool) {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if part == "releases" && i+1 < len(parts) {
			return parts[i+1], true
		}
	}
	return "", false
}

// PrintDiagnostics writes human-readable diagnostic information about the
// version-discovery process to w: the resolved bin and releases
// directories, every symlink found and its target, and the resolved
// current tag (or its absence).
func PrintDiagnostics(w io.Writer, installRoot, app string, currentTag string, hasCurrentTag bool) error {
	binDir := filepath.Join(installRoot, app, "bin")
	releasesDir := filepath.Join(installRoot, app, "releases")

	fmt.Fprintln(w, "Diagnostic information:")
	fmt.Fprintf(w, "  Bin directory: %s\n", binDir)
	fmt.Fprintf(w, "  Releases directory: %s\n", releasesDir)
	fmt.Fprintln(w)

	info, err := os.Stat(binDir)
	if err != nil || !info.IsDir() {
		fmt.Fprintln(w, "  No bin directory found")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Current version: (none)")
		return nil
	}

	fmt.Fprintln(w, "  Symlinks in bin directory:")
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return shipwrighterrors.IOWrap(err, "version.PrintDiagnostics", "failed to list bin directory")
	}

	symlinkCount := 0
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(filepath.Join(binDir, entry.Name()))
		if err != nil {
			return shipwrighterrors.IOWrap(err, "version.PrintDiagnostics", "failed to read symlink target")
		}
		fmt.Fprintf(w, "    %s -> %s\n", entry.Name(), target)
		symlinkCount++
	}

	if symlinkCount == 0 {
		fmt.Fprintln(w, "    (no symlinks found)")
	}
	fmt.Fprintln(w)

	if hasCurrentTag {
		fmt.Fprintf(w, "Current version: %s\n", currentTag)
	} else {
		fmt.Fprintln(w, "Current version: (none)")
	}
	return nil
}
