package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	deployversion "github.com/sundeck-sh/shipwright/internal/deploy/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the currently installed version",
	Long:  "Print the current tag (if any), derived from symlinks in the bin directory.",
	RunE:  runVersion,
}

type versionJSONOutput struct {
	Tag         string `json:"tag,omitempty"`
	BinDir      string `json:"bin_dir"`
	ReleasesDir string `json:"releases_dir"`
	HasVersion  bool   `json:"has_version"`
}

func runVersion(cmd *cobra.Command, args []string) error {
	g := globalOptions()

	currentTag, hasCurrentTag, err := deployversion.CurrentTag(g.InstallRoot, g.App)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := versionJSONOutput{
			Tag:         currentTag,
			BinDir:      filepath.Join(g.InstallRoot, g.App, "bin"),
			ReleasesDir: filepath.Join(g.InstallRoot, g.App, "releases"),
			HasVersion:  hasCurrentTag,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if verbosity > 0 {
		return deployversion.PrintDiagnostics(os.Stdout, g.InstallRoot, g.App, currentTag, hasCurrentTag)
	}

	if hasCurrentTag {
		fmt.Fprintln(os.Stdout, currentTag)
	}
	return nil
}
