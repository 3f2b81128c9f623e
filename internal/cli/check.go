package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/sundeck-sh/shipwright/internal/config"
	"github.com/sundeck-sh/shipwright/internal/deploy/orchestrator"
)

var checkGitHub githubFlags

var checkOpts struct {
	repo           string
	stateDirectory string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for updates without installing",
	Long:  "Check for updates without installing; refreshes cached HTTP validators in state.json.",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkOpts.repo, "repo", "", "GitHub repository in owner/repo format")
	checkCmd.Flags().StringVar(&checkOpts.stateDirectory, "state-directory", "", "directory for storing state.json; falls back to $STATE_DIRECTORY")
	checkGitHub.register(checkCmd)
}

type checkStatusOutput struct {
	Status     string `json:"status"`
	CurrentTag string `json:"current_tag,omitempty"`
	LatestTag  string `json:"latest_tag,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	opts := config.CheckOptions{
		Global:         globalOptions(),
		GitHubSource:   checkGitHub.resolve(),
		Repo:           checkOpts.repo,
		StateDirectory: loader.StateDirectory(checkOpts.stateDirectory),
	}
	if err := config.ValidateCheck(opts); err != nil {
		return err
	}

	cfg := &orchestrator.Config{
		App:             opts.App,
		InstallRoot:     opts.InstallRoot,
		StateDirectory:  opts.StateDirectory,
		Repo:            opts.Repo,
		GitHubToken:     opts.Token,
		GitHubHost:      opts.Host,
		AllowPrerelease: opts.AllowPrerelease,
		HTTPClient:      &http.Client{Timeout: opts.HTTPTimeout},
		Logger:          logger,
	}

	result, err := orchestrator.Check(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	printCheckResult(result)
	return nil
}

func printCheckResult(result orchestrator.CheckResult) {
	fmt.Fprintln(os.Stdout, statusLine(result.Status, result.CurrentTag, result.LatestTag))
	if jsonOutput {
		out := checkStatusOutput{Status: result.Status, CurrentTag: result.CurrentTag, LatestTag: result.LatestTag}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
}

func statusLine(status, currentTag, latestTag string) string {
	switch status {
	case "up-to-date":
		return fmt.Sprintf("status: up-to-date (%s)", currentTag)
	case "update-available":
		return fmt.Sprintf("status: update-available (%s -> %s)", currentTag, latestTag)
	case "install-available":
		return fmt.Sprintf("status: install-available (%s)", latestTag)
	case "no-version-installed":
		return "status: no-version-installed"
	default:
		return fmt.Sprintf("status: %s", status)
	}
}
