// Package lock implements the per-app advisory exclusive lock that
// serializes update pipelines on a single host.
package lock

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

// DefaultTimeout is the default bounded wait for lock acquisition.
const DefaultTimeout = 30 * time.Second

const fallbackLockDir = "/var/lock"

// Guard represents a held exclusive lock. Release must be called exactly
// once, ordinarily via defer immediately after Acquire succeeds. Release
// unlocks the advisory lock before unlinking the file, so a concurrent
// waiter's unlink of the same path never races a still-locked descriptor.
type Guard struct {
	file *os.File
	path string
}

// Release drops the advisory lock and removes the lock file. It is safe to
// call multiple times; subsequent calls are no-ops.
func (g *Guard) Release() error {
	if g == nil || g.file == nil {
		return nil
	}
	_ = unix.Flock(int(g.file.Fd()), unix.LOCK_UN)
	_ = g.file.Close()
	path := g.path
	g.file = nil
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return shipwrighterrors.IOWrap(err, "lock.Release", "failed to remove lock file")
	}
	return nil
}

// Path returns the lock file path used for app under lockRoot (or the
// well-known fallback path under /var/lock when lockRoot is empty).
func Path(app, lockRoot string) string {
	if lockRoot != "" {
		return filepath.Join(lockRoot, app, "lock")
	}
	return filepath.Join(fallbackLockDir, "shipwright-"+app+".lock")
}

// Acquire acquires the exclusive lock for app, retrying with exponential
// backoff (100ms, doubling, capped at 1s) until timeout elapses. timeout
// defaults to DefaultTimeout when zero. On failure to acquire within the
// deadline, returns a Busy error naming the configured timeout (not the
// elapsed wait), truncated to whole seconds.
func Acquire(app, lockRoot string, timeout time.Duration) (*Guard, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	path := Path(app, lockRoot)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { // #nosec G301 -- lock dir needs exec
		return nil, shipwrighterrors.IOWrap(err, "lock.Acquire", "failed to create lock directory")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G302,G304 -- lock file, path from operator config
	if err != nil {
		return nil, shipwrighterrors.IOWrap(err, "lock.Acquire", "failed to create lock file")
	}

	start := time.Now()
	delay := 100 * time.Millisecond
	const maxDelay = 1 * time.Second

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Guard{file: f, path: path}, nil
		}

		if time.Since(start) >= timeout {
			_ = f.Close()
			return nil, shipwrighterrors.Busy("lock.Acquire", uint64(timeout.Truncate(time.Second).Seconds()))
		}

		time.Sleep(delay)
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// ForceRelease unconditionally removes the lock file for app, without
// checking whether a process currently holds it. Returns nil whether the
// file existed or not.
func ForceRelease(app, lockRoot string) error {
	path := Path(app, lockRoot)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return shipwrighterrors.IOWrap(err, "lock.ForceRelease", "failed to remove lock file")
	}
	return nil
}
