// Package version carries build metadata stamped in via ldflags.
package version

import "fmt"

//nolint:revive // Overwritten by the release build.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the one-line form printed by the version command.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
