package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoaderGitHubTokenPrefersFlagValue(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")
	l := NewLoader()
	assert.Equal(t, "flag-token", l.GitHubToken("flag-token"))
}

func TestLoaderGitHubTokenFallsBackToEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")
	l := NewLoader()
	assert.Equal(t, "env-token", l.GitHubToken(""))
}

func TestLoaderGitHubTokenExpandsFlagReference(t *testing.T) {
	t.Setenv("MY_TOKEN", "expanded-token")
	l := NewLoader()
	assert.Equal(t, "expanded-token", l.GitHubToken("${MY_TOKEN}"))
}

func TestLoaderGitHubHostDefaultsToPublicAPI(t *testing.T) {
	l := NewLoader()
	assert.Equal(t, DefaultGitHubHost, l.GitHubHost(""))
}

func TestLoaderGitHubHostFallsBackToEnv(t *testing.T) {
	t.Setenv("GITHUB_HOST", "https://github.example.com")
	l := NewLoader()
	assert.Equal(t, "https://github.example.com", l.GitHubHost(""))
}

func TestLoaderInstallRootDefaultsWhenUnset(t *testing.T) {
	l := NewLoader()
	assert.Equal(t, DefaultInstallRoot, l.InstallRoot(""))
}

func TestLoaderInstallRootFallsBackToPrefixEnv(t *testing.T) {
	t.Setenv("PREFIX", "/srv")
	l := NewLoader()
	assert.Equal(t, "/srv", l.InstallRoot(""))
}

func TestLoaderStateDirectoryFallsBackToEnv(t *testing.T) {
	t.Setenv("STATE_DIRECTORY", "/var/lib/shipwright")
	l := NewLoader()
	assert.Equal(t, "/var/lib/shipwright", l.StateDirectory(""))
}
