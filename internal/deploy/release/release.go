// Package release implements the conditional GitHub "releases" fetch and
// asset selection by regular expression.
package release

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"sort"
	"time"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

// DefaultHost is the public GitHub API host.
const DefaultHost = "https://api.github.com"

const userAgent = "shipwright/0.1"

// Asset is a single downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Release describes one remote release.
type Release struct {
	TagName    string    `json:"tag_name"`
	Assets     []Asset   `json:"assets"`
	Prerelease bool      `json:"prerelease"`
	Draft      bool      `json:"draft"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validators are the HTTP conditional-request inputs/outputs cached across
// runs via the state document.
type Validators struct {
	ETag         string
	LastModified string
}

// FetchResult is the outcome of a conditional fetch.
type FetchResult struct {
	Release     *Release // nil when not modified
	Validators  Validators
	WasModified bool
}

// Client fetches release metadata from a GitHub-compatible REST API.
type Client struct {
	HTTPClient      *http.Client
	Host            string
	Token           string
	AllowPrerelease bool
}

// NewClient returns a Client with the given http.Client, defaulting Host to
// DefaultHost when empty.
func NewClient(httpClient *http.Client, host, token string, allowPrerelease bool) *Client {
	if host == "" {
		host = DefaultHost
	}
	return &Client{HTTPClient: httpClient, Host: host, Token: token, AllowPrerelease: allowPrerelease}
}

// FetchLatest queries the "latest stable" endpoint (a single release
// object) when AllowPrerelease is false, or the paged "all releases"
// endpoint (a list) otherwise — filtering drafts and selecting the most
// recently created entry. Conditional headers are attached from in, and
// any ETag/Last-Modified returned by the server is propagated regardless of
// status code.
func (c *Client) FetchLatest(ctx context.Context, repo string, in Validators) (FetchResult, error) {
	var url string
	if c.AllowPrerelease {
		url = c.Host + "/repos/" + repo + "/releases"
	} else {
		url = c.Host + "/repos/" + repo + "/releases/latest"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, shipwrighterrors.WrapSafe(err, shipwrighterrors.KindTransport, "release.FetchLatest", "failed to build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if in.ETag != "" {
		req.Header.Set("If-None-Match", in.ETag)
	}
	if in.LastModified != "" {
		req.Header.Set("If-Modified-Since", in.LastModified)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return FetchResult{}, shipwrighterrors.WrapSafe(err, shipwrighterrors.KindTransport, "release.FetchLatest", "request failed")
	}
	defer resp.Body.Close()

	out := Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.StatusCode == http.StatusNotModified {
		return FetchResult{Release: nil, Validators: out, WasModified: false}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FetchResult{}, shipwrighterrors.Newf(shipwrighterrors.KindTransport, "releases request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, shipwrighterrors.IOWrap(err, "release.FetchLatest", "failed to read response body")
	}

	var rel *Release
	if c.AllowPrerelease {
		var list []Release
		if err := json.Unmarshal(body, &list); err != nil {
			return FetchResult{}, shipwrighterrors.Wrap(err, shipwrighterrors.KindTransport, "release.FetchLatest", "failed to parse releases list")
		}
		filtered := list[:0]
		for _, r := range list {
			if !r.Draft {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			return FetchResult{}, shipwrighterrors.NotFound("release.FetchLatest", "no releases found")
		}
		sort.Slice(filtered, func(i, j int) bool {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		})
		rel = &filtered[0]
	} else {
		rel = &Release{}
		if err := json.Unmarshal(body, rel); err != nil {
			return FetchResult{}, shipwrighterrors.Wrap(err, shipwrighterrors.KindTransport, "release.FetchLatest", "failed to parse release")
		}
	}

	return FetchResult{Release: rel, Validators: out, WasModified: true}, nil
}

// SelectAsset returns the first asset whose name matches pattern, in the
// order assets were provided by the server (stable), or nil if none match.
func SelectAsset(assets []Asset, pattern *regexp.Regexp) *Asset {
	for i := range assets {
		if pattern.MatchString(assets[i].Name) {
			return &assets[i]
		}
	}
	return nil
}
