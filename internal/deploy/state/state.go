// Package state persists the small JSON document recording the last tag
// whose install transaction completed and the HTTP validators to present
// on the next conditional fetch.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
	"github.com/sundeck-sh/shipwright/internal/fileutil"
)

// Document is the on-disk state.json schema.
type Document struct {
	LatestTag    string    `json:"latest_tag"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
	InstalledAt  time.Time `json:"installed_at"`
}

// Load reads the state document at path. It returns (nil, nil) if the file
// does not exist; any other read or parse failure is fatal.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied state directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, shipwrighterrors.IOWrap(err, "state.Load", "failed to read state file")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, shipwrighterrors.Wrap(err, shipwrighterrors.KindIO, "state.Load", "failed to parse state file")
	}
	return &doc, nil
}

// Save atomically persists the state document: a same-directory temp file
// is written, fsynced, renamed over the destination, and the parent
// directory is itself fsynced so the rename survives a crash. The parent
// directory is created if missing.
func Save(path string, doc *Document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { // #nosec G301 -- state dirs need exec for traversal
		return shipwrighterrors.IOWrap(err, "state.Save", "failed to create state directory")
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return shipwrighterrors.Wrap(err, shipwrighterrors.KindIO, "state.Save", "failed to serialize state")
	}

	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil { // #nosec G306 -- state readable by operator
		return shipwrighterrors.IOWrap(err, "state.Save", "failed to persist state file")
	}
	return nil
}
