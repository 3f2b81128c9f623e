// Package layout owns the on-disk install tree for one application:
// staging, releases, and the bin/ activation symlinks.
package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

// MakeStaging creates a uniquely-named staging directory under
// <root>/<app>/staging/<tag>.<random>, creating the staging parent if
// needed, and returns its path.
func MakeStaging(root, app, tag string) (string, error) {
	stagingParent := filepath.Join(root, app, "staging")
	if err := os.MkdirAll(stagingParent, 0o755); err != nil {
		return "", shipwrighterrors.IOWrap(err, "layout.MakeStaging", "failed to create staging parent directory")
	}

	dir, err := os.MkdirTemp(stagingParent, tag+".")
	if err != nil {
		return "", shipwrighterrors.IOWrap(err, "layout.MakeStaging", "failed to create staging directory")
	}
	return dir, nil
}

// FsyncTree recursively fsyncs every regular file and directory under root,
// ensuring the entire extracted tree is durable before it is renamed into
// place.
func FsyncTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		f, openErr := os.Open(path) // #nosec G304 -- path comes from WalkDir over a pipeline-owned tree
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		return f.Sync()
	})
	if err != nil {
		return shipwrighterrors.IOWrap(err, "layout.FsyncTree", "failed to fsync extracted tree")
	}
	return nil
}

// AtomicMove renames srcDir to <releasesDir>/<tag> using a fail-if-exists
// rename, then fsyncs releasesDir. Returns the final path.
func AtomicMove(srcDir, releasesDir, tag string) (string, error) {
	target := filepath.Join(releasesDir, tag)

	if err := unix.Renameat2(unix.AT_FDCWD, srcDir, unix.AT_FDCWD, target, unix.RENAME_NOREPLACE); err != nil {
		if err == unix.EEXIST {
			return "", shipwrighterrors.AlreadyExists("layout.AtomicMove", target)
		}
		return "", shipwrighterrors.IOWrap(err, "layout.AtomicMove", "failed to rename staging directory into releases")
	}

	parent, err := os.Open(releasesDir) // #nosec G304 -- releasesDir is the pipeline-owned releases root
	if err != nil {
		return "", shipwrighterrors.IOWrap(err, "layout.AtomicMove", "failed to open releases directory")
	}
	defer parent.Close()
	if err := parent.Sync(); err != nil {
		return "", shipwrighterrors.IOWrap(err, "layout.AtomicMove", "failed to fsync releases directory")
	}

	return target, nil
}

// DiscoverExecutables recursively walks dir and returns the paths (relative
// to dir) of all regular files with any execute bit set.
func DiscoverExecutables(dir string) ([]string, error) {
	var executables []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if info.Mode().Perm()&0o111 == 0 {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		executables = append(executables, rel)
		return nil
	})
	if err != nil {
		return nil, shipwrighterrors.IOWrap(err, "layout.DiscoverExecutables", "failed to walk release directory")
	}
	return executables, nil
}

// LinkBinaries creates flattened symlinks in binDir for every executable
// found in releaseDir, pointing at "../releases/<tag>/<relative-path>"
// where tag is releaseDir's basename. Before writing, stale symlinks whose
// target begins with "../releases/" but no longer correspond to a current
// executable are removed. Symlinks are written via a temp-name-then-rename
// so no half-written link is ever observable; binDir is fsynced once at
// the end. If two executables share a basename, the last one processed
// wins and a warning is logged.
func LinkBinaries(releaseDir, binDir string, logf func(format string, args ...any)) error {
	tag := filepath.Base(releaseDir)

	executables, err := DiscoverExecutables(releaseDir)
	if err != nil {
		return err
	}

	wanted := make(map[string]string, len(executables)) // basename -> relative path
	var collisions []string
	for _, rel := range executables {
		base := filepath.Base(rel)
		if prior, exists := wanted[base]; exists && prior != rel {
			collisions = append(collisions, fmt.Sprintf("%s and %s", prior, rel))
		}
		wanted[base] = rel
	}
	if logf != nil {
		for _, c := range collisions {
			logf("binary name collision for %q: %s (last one wins)", filepath.Base(c), c)
		}
	}

	if err := sweepStaleLinks(binDir, wanted); err != nil {
		return err
	}

	for base, rel := range wanted {
		target := filepath.Join("..", "releases", tag, rel)
		tempLink := filepath.Join(binDir, base+".tmp")
		finalLink := filepath.Join(binDir, base)

		_ = os.Remove(tempLink)
		if err := os.Symlink(target, tempLink); err != nil {
			return shipwrighterrors.IOWrap(err, "layout.LinkBinaries", "failed to create temp symlink")
		}
		if err := os.Rename(tempLink, finalLink); err != nil {
			return shipwrighterrors.IOWrap(err, "layout.LinkBinaries", "failed to activate symlink")
		}
	}

	binHandle, err := os.Open(binDir) // #nosec G304 -- binDir is the pipeline-owned bin directory
	if err != nil {
		return shipwrighterrors.IOWrap(err, "layout.LinkBinaries", "failed to open bin directory")
	}
	defer binHandle.Close()
	if err := binHandle.Sync(); err != nil {
		return shipwrighterrors.IOWrap(err, "layout.LinkBinaries", "failed to fsync bin directory")
	}

	return nil
}

func sweepStaleLinks(binDir string, wanted map[string]string) error {
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return shipwrighterrors.IOWrap(err, "layout.sweepStaleLinks", "failed to list bin directory")
	}

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		name := entry.Name()
		path := filepath.Join(binDir, name)
		target, err := os.Readlink(path)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(target, "../releases/") {
			continue
		}
		if _, ok := wanted[name]; ok {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return shipwrighterrors.IOWrap(err, "layout.sweepStaleLinks", "failed to remove stale symlink")
		}
	}
	return nil
}

// PruneResult reports the outcome of a retention pass.
type PruneResult struct {
	Deleted []string
	Failed  []string
}

type releaseEntry struct {
	name  string
	mtime time.Time
}

// PruneOldReleases lists the subdirectories of releasesDir, sorts them by
// (mtime desc, name desc), keeps the first retain entries plus currentTag
// unconditionally, and removes the rest. Individual deletion failures are
// reported rather than aborting the pass.
func PruneOldReleases(releasesDir, currentTag string, retain int) (PruneResult, error) {
	entries, err := os.ReadDir(releasesDir)
	if err != nil {
		return PruneResult{}, shipwrighterrors.IOWrap(err, "layout.PruneOldReleases", "failed to list releases directory")
	}

	var releases []releaseEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		releases = append(releases, releaseEntry{name: e.Name(), mtime: info.ModTime()})
	}

	sort.Slice(releases, func(i, j int) bool {
		if !releases[i].mtime.Equal(releases[j].mtime) {
			return releases[i].mtime.After(releases[j].mtime)
		}
		return releases[i].name > releases[j].name
	})

	var result PruneResult
	for i, r := range releases {
		if i < retain || r.name == currentTag {
			continue
		}
		path := filepath.Join(releasesDir, r.name)
		if err := os.RemoveAll(path); err != nil {
			result.Failed = append(result.Failed, r.name)
			continue
		}
		result.Deleted = append(result.Deleted, r.name)
	}

	return result, nil
}
