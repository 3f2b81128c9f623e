package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sundeck-sh/shipwright/internal/config"
	"github.com/sundeck-sh/shipwright/internal/deploy/lock"
)

var unlockOpts struct {
	stateDirectory string
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Forcibly remove a stale lock",
	Long:  "Unconditionally remove the lock file for the app; succeeds whether or not a lock was held.",
	RunE:  runUnlock,
}

func init() {
	unlockCmd.Flags().StringVar(&unlockOpts.stateDirectory, "state-directory", "", "directory holding the lock file; falls back to $STATE_DIRECTORY")
}

func runUnlock(cmd *cobra.Command, args []string) error {
	opts := config.UnlockOptions{
		Global:         globalOptions(),
		StateDirectory: loader.StateDirectory(unlockOpts.stateDirectory),
	}
	if err := config.ValidateUnlock(opts); err != nil {
		return err
	}

	if err := lock.ForceRelease(opts.App, opts.StateDirectory); err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "status: unlocked")
	return nil
}
