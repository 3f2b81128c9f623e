package config

import (
	"github.com/spf13/viper"
)

// Loader resolves global/env-sourced defaults (GITHUB_TOKEN, GITHUB_HOST,
// PREFIX, STATE_DIRECTORY) that cobra flags fall back to when left unset,
// using viper purely as an env-binding layer; no config file is read.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader with the well-known environment bindings wired.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	_ = v.BindEnv("github_token", "GITHUB_TOKEN")
	_ = v.BindEnv("github_host", "GITHUB_HOST")
	_ = v.BindEnv("install_root", "PREFIX")
	_ = v.BindEnv("state_directory", "STATE_DIRECTORY")

	return &Loader{v: v}
}

// GitHubToken resolves the --github-token flag, falling back to the
// GITHUB_TOKEN environment variable. A flag value is expanded for
// ${VAR}/$VAR references before being returned.
func (l *Loader) GitHubToken(flagValue string) string {
	if flagValue != "" {
		return ExpandEnvVar(flagValue)
	}
	return l.v.GetString("github_token")
}

// GitHubHost resolves the --github-host flag, falling back to GITHUB_HOST
// and finally the public API host.
func (l *Loader) GitHubHost(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := l.v.GetString("github_host"); v != "" {
		return v
	}
	return DefaultGitHubHost
}

// InstallRoot resolves the --install-root flag, falling back to PREFIX and
// finally the default install root.
func (l *Loader) InstallRoot(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := l.v.GetString("install_root"); v != "" {
		return v
	}
	return DefaultInstallRoot
}

// StateDirectory resolves the --state-directory flag, falling back to
// STATE_DIRECTORY.
func (l *Loader) StateDirectory(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return l.v.GetString("state_directory")
}
