// Package version carries build metadata stamped via -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// String renders the version banner printed by `parley version`.
// Unstamped builds report the module version from `go install`, when known.
func String() string {
	return fmt.Sprintf("parley %s (commit=%s, date=%s, go=%s)", resolved(), Commit, Date, runtime.Version())
}

func resolved() string {
	if Version != "dev" {
		return Version
	}
	info, ok := readBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return Version
	}
	return info.Main.Version
}
