// Package cli provides the command-line interface for shipwright.
package cli

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sundeck-sh/shipwright/internal/config"
	"github.com/sundeck-sh/shipwright/internal/version"
)

var (
	// Global flags, bound in init() below.
	appName     string
	installRoot string
	httpTimeout time.Duration
	verbosity   int
	jsonOutput  bool

	loader = config.NewLoader()

	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	styles = struct {
		Success lipgloss.Style
		Warning lipgloss.Style
		Error   lipgloss.Style
	}{
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

var rootCmd = &cobra.Command{
	Use:           "shipwright",
	Short:         "Unattended deployment agent for GitHub-style releases",
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogLevel()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&appName, "app", "", "application name (used for directory structure under install root)")
	rootCmd.PersistentFlags().StringVar(&installRoot, "install-root", "", "root directory for installations (default: /opt, or $PREFIX)")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "http-timeout", config.DefaultHTTPTimeout, "HTTP request timeout")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase logging verbosity (-v for debug)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output alongside the plain-text status line")

	_ = rootCmd.MarkPersistentFlagRequired("app")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(unlockCmd)
}

func configureLogLevel() {
	if verbosity > 0 {
		logger.SetLevel(log.DebugLevel)
		return
	}
	logger.SetLevel(log.InfoLevel)
}

func globalOptions() config.Global {
	return config.Global{
		App:         appName,
		InstallRoot: loader.InstallRoot(installRoot),
		HTTPTimeout: httpTimeout,
		Verbosity:   verbosity,
	}
}

// Execute runs the root command and returns its exit code: 0 on success,
// 1 on any reported failure, matching spec.md's process-exit contract.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		return 1
	}
	return 0
}

// ExecuteContext runs the root command with a context that cancels the
// in-flight check/update pipeline on graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
