package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/sundeck-sh/shipwright/internal/config"
	"github.com/sundeck-sh/shipwright/internal/deploy/orchestrator"
	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

var updateGitHub githubFlags

var updateOpts struct {
	repo             string
	pattern          string
	stateDirectory   string
	checksumPattern  string
	skipVerification bool
	restartCommand   string
	retain           int
	forceUnlock      bool
	lockTimeout      time.Duration
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update to the latest release",
	Long:  "Download, verify, extract, install, and optionally restart the application.",
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateOpts.repo, "repo", "", "GitHub repository in owner/repo format")
	updateCmd.Flags().StringVar(&updateOpts.pattern, "pattern", "", "regex pattern to match the release asset filename")
	updateCmd.Flags().StringVar(&updateOpts.stateDirectory, "state-directory", "", "directory for storing state.json; falls back to $STATE_DIRECTORY")
	updateCmd.Flags().StringVar(&updateOpts.checksumPattern, "checksum-pattern", "", "regex pattern to match the checksum manifest asset; required unless --skip-verification")
	updateCmd.Flags().BoolVar(&updateOpts.skipVerification, "skip-verification", false, "skip checksum verification of the downloaded asset")
	updateCmd.Flags().StringVar(&updateOpts.restartCommand, "restart-command", "", "shell command to execute after a successful update")
	updateCmd.Flags().IntVar(&updateOpts.retain, "retain", config.DefaultRetain, "number of releases to retain after pruning")
	updateCmd.Flags().BoolVar(&updateOpts.forceUnlock, "force-unlock", false, "forcibly remove a stale lock before acquiring it")
	updateCmd.Flags().DurationVar(&updateOpts.lockTimeout, "lock-timeout", config.DefaultLockTimeout, "bounded wait for lock acquisition")
	updateGitHub.register(updateCmd)
}

type updateStatusOutput struct {
	Status        string `json:"status"`
	Tag           string `json:"tag,omitempty"`
	RestartFailed bool   `json:"restart_failed,omitempty"`
}

func runUpdate(cmd *cobra.Command, args []string) error {
	opts := config.UpdateOptions{
		Global:           globalOptions(),
		GitHubSource:     updateGitHub.resolve(),
		Repo:             updateOpts.repo,
		Pattern:          updateOpts.pattern,
		ChecksumPattern:  updateOpts.checksumPattern,
		StateDirectory:   loader.StateDirectory(updateOpts.stateDirectory),
		SkipVerification: updateOpts.skipVerification,
		RestartCommand:   updateOpts.restartCommand,
		Retain:           updateOpts.retain,
		ForceUnlock:      updateOpts.forceUnlock,
		LockTimeout:      updateOpts.lockTimeout,
	}
	if err := config.ValidateUpdate(opts); err != nil {
		return err
	}

	assetPattern := regexp.MustCompile(opts.Pattern)
	var checksumPattern *regexp.Regexp
	if opts.ChecksumPattern != "" {
		checksumPattern = regexp.MustCompile(opts.ChecksumPattern)
	}

	cfg := &orchestrator.Config{
		App:             opts.App,
		InstallRoot:     opts.InstallRoot,
		StateDirectory:  opts.StateDirectory,
		Repo:            opts.Repo,
		GitHubToken:     opts.Token,
		GitHubHost:      opts.Host,
		AllowPrerelease: opts.AllowPrerelease,
		AssetPattern:    assetPattern,
		ChecksumPattern: checksumPattern,
		SkipVerify:      opts.SkipVerification,
		RestartCommand:  opts.RestartCommand,
		Retain:          opts.Retain,
		ForceUnlock:     opts.ForceUnlock,
		LockTimeout:     opts.LockTimeout,
		HTTPTimeout:     opts.HTTPTimeout,
		HTTPClient:      &http.Client{Timeout: opts.HTTPTimeout},
		Logger:          logger,
	}

	result, err := orchestrator.Update(cmd.Context(), cfg)

	restartFailed := shipwrighterrors.IsKind(err, shipwrighterrors.KindRestartFailed)
	if err != nil && !restartFailed {
		return err
	}

	printUpdateResult(result)

	if restartFailed {
		return err
	}
	return nil
}

func printUpdateResult(result orchestrator.UpdateResult) {
	switch result.Status {
	case "up-to-date":
		fmt.Fprintf(os.Stdout, "status: up-to-date (%s)\n", result.Tag)
	case "installed":
		fmt.Fprintf(os.Stdout, "status: installed (%s)\n", result.Tag)
		if result.RestartFailed {
			fmt.Fprintln(os.Stderr, "warning: restart command failed after install")
		}
	}

	if jsonOutput {
		out := updateStatusOutput{Status: result.Status, Tag: result.Tag, RestartFailed: result.RestartFailed}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
}
