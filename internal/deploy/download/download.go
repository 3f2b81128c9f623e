// Package download streams a release asset to a temporary file, retrying
// transient failures with exponential backoff.
package download

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

// MaxRetries is the number of attempts for a transient (network or 5xx)
// failure before giving up.
const MaxRetries = 3

// Options configures a single download.
type Options struct {
	URL     string
	Token   string
	Client  *http.Client
	TempDir string
	// AllowInsecureTransport permits plain-http:// asset URLs. Off by
	// default: GitHub Enterprise deployments occasionally serve assets over
	// http in lab environments, but a production agent should refuse to
	// leak a bearer token over an unencrypted connection.
	AllowInsecureTransport bool
}

// Fetch streams the asset at opts.URL to a newly created named temp file
// under opts.TempDir, retrying on connection errors and 5xx responses (4xx
// is terminal). The returned file is fsynced and closed; the caller owns
// removing it.
func Fetch(ctx context.Context, opts Options) (string, error) {
	if !opts.AllowInsecureTransport && strings.HasPrefix(opts.URL, "http://") {
		return "", shipwrighterrors.Config("download.Fetch", "refusing to fetch asset over insecure http:// (set AllowInsecureTransport to override)")
	}

	var lastErr error
	delay := 500 * time.Millisecond

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		path, err := attemptFetch(ctx, opts)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if !shipwrighterrors.IsRecoverable(err) || attempt == MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", shipwrighterrors.WrapSafe(ctx.Err(), shipwrighterrors.KindTransport, "download.Fetch", "context canceled during retry wait")
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", lastErr
}

func attemptFetch(ctx context.Context, opts Options) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return "", shipwrighterrors.WrapSafe(err, shipwrighterrors.KindTransport, "download.attemptFetch", "failed to build request")
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	resp, err := opts.Client.Do(req)
	if err != nil {
		return "", shipwrighterrors.TransportWrap(err, "download.attemptFetch", "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", shipwrighterrors.Transport("download.attemptFetch", "server error")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", shipwrighterrors.Newf(shipwrighterrors.KindTransport, "download returned status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(opts.TempDir, "shipwright-download-*")
	if err != nil {
		return "", shipwrighterrors.IOWrap(err, "download.attemptFetch", "failed to create temp file")
	}
	tmpPath := f.Name()

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", shipwrighterrors.TransportWrap(err, "download.attemptFetch", "failed while streaming body")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", shipwrighterrors.IOWrap(err, "download.attemptFetch", "failed to fsync downloaded file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", shipwrighterrors.IOWrap(err, "download.attemptFetch", "failed to close downloaded file")
	}
	return tmpPath, nil
}
