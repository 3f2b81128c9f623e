package config

import (
	"regexp"
	"strings"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

// ValidateAppName enforces the app-name constraints from the global --app
// flag: non-empty, and free of path-traversal or embedded-NUL hazards since
// the name becomes a directory component under the install root.
func ValidateAppName(name string) error {
	const op = "config.ValidateAppName"
	switch {
	case name == "":
		return shipwrighterrors.Config(op, "app name cannot be empty")
	case strings.Contains(name, "/"):
		return shipwrighterrors.Config(op, "app name cannot contain '/'")
	case strings.Contains(name, `\`):
		return shipwrighterrors.Config(op, `app name cannot contain '\'`)
	case strings.Contains(name, ".."):
		return shipwrighterrors.Config(op, "app name cannot contain '..'")
	case strings.ContainsRune(name, 0):
		return shipwrighterrors.Config(op, "app name cannot contain null bytes")
	}
	return nil
}

// ValidateGlobal validates the flags shared by every subcommand.
func ValidateGlobal(g Global) error {
	return ValidateAppName(g.App)
}

// ValidateCheck validates check-subcommand options beyond what cobra's
// required-flag enforcement already covers.
func ValidateCheck(opts CheckOptions) error {
	const op = "config.ValidateCheck"
	if err := ValidateGlobal(opts.Global); err != nil {
		return err
	}
	if opts.Repo == "" {
		return shipwrighterrors.Config(op, "--repo is required")
	}
	if opts.StateDirectory == "" {
		return shipwrighterrors.Config(op, "--state-directory is required")
	}
	return nil
}

// ValidateUpdate validates update-subcommand options: the checksum pattern
// requirement unless verification is explicitly skipped, a non-negative
// retain count, and that both pattern flags compile as regexes. All of this
// is a ConfigError surfaced before any network or filesystem I/O occurs.
func ValidateUpdate(opts UpdateOptions) error {
	const op = "config.ValidateUpdate"
	if err := ValidateGlobal(opts.Global); err != nil {
		return err
	}
	if opts.Repo == "" {
		return shipwrighterrors.Config(op, "--repo is required")
	}
	if opts.StateDirectory == "" {
		return shipwrighterrors.Config(op, "--state-directory is required")
	}
	if opts.Pattern == "" {
		return shipwrighterrors.Config(op, "--pattern is required")
	}
	if _, err := regexp.Compile(opts.Pattern); err != nil {
		return shipwrighterrors.ConfigWrap(err, op, "--pattern is not a valid regular expression")
	}

	if !opts.SkipVerification {
		if opts.ChecksumPattern == "" {
			return shipwrighterrors.Config(op, "--checksum-pattern is required unless --skip-verification is set")
		}
		if _, err := regexp.Compile(opts.ChecksumPattern); err != nil {
			return shipwrighterrors.ConfigWrap(err, op, "--checksum-pattern is not a valid regular expression")
		}
	}

	if opts.Retain < 0 {
		return shipwrighterrors.Config(op, "--retain must be non-negative")
	}

	return nil
}

// ValidateUnlock validates unlock-subcommand options.
func ValidateUnlock(opts UnlockOptions) error {
	const op = "config.ValidateUnlock"
	if err := ValidateGlobal(opts.Global); err != nil {
		return err
	}
	if opts.StateDirectory == "" {
		return shipwrighterrors.Config(op, "--state-directory is required")
	}
	return nil
}
