// Package orchestrator composes the state, lock, release, download,
// verify, extract, layout, and version packages into the check and update
// pipelines.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sundeck-sh/shipwright/internal/deploy/download"
	"github.com/sundeck-sh/shipwright/internal/deploy/extract"
	"github.com/sundeck-sh/shipwright/internal/deploy/layout"
	"github.com/sundeck-sh/shipwright/internal/deploy/lock"
	"github.com/sundeck-sh/shipwright/internal/deploy/release"
	"github.com/sundeck-sh/shipwright/internal/deploy/state"
	"github.com/sundeck-sh/shipwright/internal/deploy/verify"
	deployversion "github.com/sundeck-sh/shipwright/internal/deploy/version"
	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

// Logger is the minimal structured-logging surface the orchestrator needs;
// satisfied by *charmbracelet/log.Logger.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Config carries everything one check/update invocation needs.
type Config struct {
	App             string
	InstallRoot     string
	StateDirectory  string
	Repo            string
	GitHubToken     string
	GitHubHost      string
	AllowPrerelease bool

	AssetPattern    *regexp.Regexp
	ChecksumPattern *regexp.Regexp
	SkipVerify      bool

	RestartCommand string
	Retain         int
	ForceUnlock    bool
	LockTimeout    time.Duration
	HTTPTimeout    time.Duration

	// AllowInsecureDownload permits fetching the release asset over plain
	// http://. Off by default; see internal/deploy/download.
	AllowInsecureDownload bool

	HTTPClient *http.Client
	Logger     Logger
}

func (c *Config) statePath() string {
	return filepath.Join(c.StateDirectory, c.App, "state.json")
}

// CheckResult is the outcome of the check pipeline.
type CheckResult struct {
	Status     string // "up-to-date", "update-available", "install-available", "no-version-installed"
	CurrentTag string
	LatestTag  string
}

// Check performs the read-only status pipeline: §4.9 "check".
func Check(ctx context.Context, cfg *Config) (CheckResult, error) {
	doc, err := state.Load(cfg.statePath())
	if err != nil {
		return CheckResult{}, err
	}

	var validators release.Validators
	if doc != nil {
		validators = release.Validators{ETag: doc.ETag, LastModified: doc.LastModified.UTC().Format(time.RFC1123)}
	}

	client := release.NewClient(cfg.HTTPClient, cfg.GitHubHost, cfg.GitHubToken, cfg.AllowPrerelease)
	fetchResult, err := client.FetchLatest(ctx, cfg.Repo, validators)
	if err != nil {
		return CheckResult{}, err
	}

	currentTag, hasCurrentTag, err := deployversion.CurrentTag(cfg.InstallRoot, cfg.App)
	if err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{CurrentTag: currentTag}

	switch {
	case !hasCurrentTag && fetchResult.Release == nil:
		result.Status = "no-version-installed"
	case !hasCurrentTag && fetchResult.Release != nil:
		result.Status = "install-available"
		result.LatestTag = fetchResult.Release.TagName
	case hasCurrentTag && fetchResult.Release == nil:
		result.Status = "up-to-date"
		result.LatestTag = currentTag
	case hasCurrentTag && fetchResult.Release != nil && fetchResult.Release.TagName == currentTag:
		result.Status = "up-to-date"
		result.LatestTag = currentTag
	default:
		result.Status = "update-available"
		result.LatestTag = fetchResult.Release.TagName
	}

	if doc != nil && hasCurrentTag && fetchResult.Validators != validators {
		doc.ETag = fetchResult.Validators.ETag
		doc.LastModified = parseLastModified(fetchResult.Validators.LastModified)
		if err := state.Save(cfg.statePath(), doc); err != nil {
			return result, err
		}
	}

	return result, nil
}

// UpdateResult is the outcome of the update pipeline.
type UpdateResult struct {
	Status        string // "up-to-date", "installed"
	Tag           string
	RestartFailed bool
}

// Update performs the full install transaction: §4.9 "update".
func Update(ctx context.Context, cfg *Config) (UpdateResult, error) {
	if cfg.ForceUnlock {
		_ = lock.ForceRelease(cfg.App, cfg.StateDirectory)
	}

	guard, err := lock.Acquire(cfg.App, cfg.StateDirectory, cfg.LockTimeout)
	if err != nil {
		return UpdateResult{}, err
	}
	defer guard.Release()

	doc, err := state.Load(cfg.statePath())
	if err != nil {
		return UpdateResult{}, err
	}

	var validators release.Validators
	if doc != nil {
		validators = release.Validators{ETag: doc.ETag, LastModified: doc.LastModified.UTC().Format(time.RFC1123)}
	}

	client := release.NewClient(cfg.HTTPClient, cfg.GitHubHost, cfg.GitHubToken, cfg.AllowPrerelease)
	fetchResult, err := client.FetchLatest(ctx, cfg.Repo, validators)
	if err != nil {
		return UpdateResult{}, err
	}

	currentTag, hasCurrentTag, err := deployversion.CurrentTag(cfg.InstallRoot, cfg.App)
	if err != nil {
		return UpdateResult{}, err
	}

	upToDate := hasCurrentTag && ((!fetchResult.WasModified && doc != nil && currentTag == doc.LatestTag) ||
		(fetchResult.Release != nil && fetchResult.Release.TagName == currentTag))
	if upToDate {
		return UpdateResult{Status: "up-to-date", Tag: currentTag}, nil
	}

	if fetchResult.Release == nil {
		return UpdateResult{}, shipwrighterrors.NotFound("orchestrator.Update", "no release metadata available to install")
	}
	targetRelease := fetchResult.Release

	asset := release.SelectAsset(targetRelease.Assets, cfg.AssetPattern)
	if asset == nil {
		return UpdateResult{}, shipwrighterrors.NotFound("orchestrator.Update", fmt.Sprintf("no asset in release %s matches the configured pattern", targetRelease.TagName))
	}

	tempDir, err := os.MkdirTemp("", "shipwright-download-*")
	if err != nil {
		return UpdateResult{}, shipwrighterrors.IOWrap(err, "orchestrator.Update", "failed to create download scratch directory")
	}
	defer os.RemoveAll(tempDir)

	downloadedPath, err := download.Fetch(ctx, download.Options{
		URL:                    asset.BrowserDownloadURL,
		Token:                  cfg.GitHubToken,
		Client:                 cfg.HTTPClient,
		TempDir:                tempDir,
		AllowInsecureTransport: cfg.AllowInsecureDownload,
	})
	if err != nil {
		return UpdateResult{}, err
	}

	if !cfg.SkipVerify {
		manifestAsset := release.SelectAsset(targetRelease.Assets, cfg.ChecksumPattern)
		if manifestAsset == nil {
			return UpdateResult{}, shipwrighterrors.NotFound("orchestrator.Update", "no checksum manifest asset matches the configured pattern")
		}
		if err := verify.FetchAndVerify(ctx, cfg.HTTPClient, manifestAsset.BrowserDownloadURL, cfg.GitHubToken, asset.Name, downloadedPath); err != nil {
			return UpdateResult{}, err
		}
	}

	stagingDir, err := layout.MakeStaging(cfg.InstallRoot, cfg.App, targetRelease.TagName)
	if err != nil {
		return UpdateResult{}, err
	}

	namedCopy := filepath.Join(stagingDir, asset.Name)
	if err := copyFile(downloadedPath, namedCopy); err != nil {
		return UpdateResult{}, err
	}

	if err := extract.Unpack(namedCopy, stagingDir); err != nil {
		return UpdateResult{}, err
	}
	if err := os.Remove(namedCopy); err != nil {
		return UpdateResult{}, shipwrighterrors.IOWrap(err, "orchestrator.Update", "failed to remove staged archive copy")
	}
	if err := layout.FsyncTree(stagingDir); err != nil {
		return UpdateResult{}, err
	}

	releasesDir := filepath.Join(cfg.InstallRoot, cfg.App, "releases")
	if err := os.MkdirAll(releasesDir, 0o755); err != nil {
		return UpdateResult{}, shipwrighterrors.IOWrap(err, "orchestrator.Update", "failed to create releases directory")
	}

	finalDir, err := layout.AtomicMove(stagingDir, releasesDir, targetRelease.TagName)
	if err != nil {
		return UpdateResult{}, err
	}

	binDir := filepath.Join(cfg.InstallRoot, cfg.App, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return UpdateResult{}, shipwrighterrors.IOWrap(err, "orchestrator.Update", "failed to create bin directory")
	}

	var logf func(string, ...any)
	if cfg.Logger != nil {
		logf = cfg.Logger.Warnf
	}
	if err := layout.LinkBinaries(finalDir, binDir, logf); err != nil {
		return UpdateResult{}, err
	}

	restartFailed := false
	if cfg.RestartCommand != "" {
		if err := runRestartHook(ctx, cfg.RestartCommand); err != nil {
			restartFailed = true
			if cfg.Logger != nil {
				cfg.Logger.Warnf("restart command failed: %v", err)
			}
		}
	}

	pruneResult, err := layout.PruneOldReleases(releasesDir, targetRelease.TagName, cfg.Retain)
	if err != nil {
		return UpdateResult{}, err
	}
	if len(pruneResult.Failed) > 0 && cfg.Logger != nil {
		cfg.Logger.Warnf("failed to prune %d release(s): %v", len(pruneResult.Failed), pruneResult.Failed)
	}

	newDoc := &state.Document{
		LatestTag:    targetRelease.TagName,
		ETag:         fetchResult.Validators.ETag,
		LastModified: parseLastModified(fetchResult.Validators.LastModified),
		InstalledAt:  time.Now().UTC(),
	}
	if err := state.Save(cfg.statePath(), newDoc); err != nil {
		return UpdateResult{}, err
	}

	if restartFailed {
		return UpdateResult{Status: "installed", Tag: targetRelease.TagName, RestartFailed: true},
			shipwrighterrors.RestartFailed("orchestrator.Update", cfg.RestartCommand, -1, "", "")
	}

	return UpdateResult{Status: "installed", Tag: targetRelease.TagName}, nil
}

func parseLastModified(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- src is a pipeline-owned temp download path
	if err != nil {
		return shipwrighterrors.IOWrap(err, "orchestrator.copyFile", "failed to open downloaded file")
	}
	defer in.Close()

	out, err := os.Create(dst) // #nosec G304 -- dst is a pipeline-owned staging path
	if err != nil {
		return shipwrighterrors.IOWrap(err, "orchestrator.copyFile", "failed to create staged archive copy")
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return shipwrighterrors.IOWrap(err, "orchestrator.copyFile", "failed to copy downloaded file into staging")
	}
	return nil
}

func runRestartHook(ctx context.Context, command string) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return shipwrighterrors.RestartFailed("orchestrator.runRestartHook", command, exitCode, string(output), "")
	}
	return nil
}
