package cli

import (
	"github.com/spf13/cobra"

	"github.com/sundeck-sh/shipwright/internal/config"
)

// githubFlags holds the --github-token/--github-host/--allow-prerelease
// flags shared by check and update.
type githubFlags struct {
	token           string
	host            string
	allowPrerelease bool
}

func (f *githubFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.token, "github-token", "", "GitHub API token (required for private repos or higher rate limits); falls back to $GITHUB_TOKEN")
	cmd.Flags().StringVar(&f.host, "github-host", "", "GitHub API hostname (use for GitHub Enterprise); falls back to $GITHUB_HOST")
	cmd.Flags().BoolVar(&f.allowPrerelease, "allow-prerelease", false, "include prerelease versions when checking for updates")
}

func (f *githubFlags) resolve() config.GitHubSource {
	return config.GitHubSource{
		Token:           loader.GitHubToken(f.token),
		Host:            loader.GitHubHost(f.host),
		AllowPrerelease: f.allowPrerelease,
	}
}
