// Package version reports which cypherguard build is running. Release builds
// set the variables with -ldflags; go install builds fall back to the module
// and VCS data the toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/zero-day-ai/cypherguard/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// build resolves the values, preferring ldflags over embedded build info.
func build() (version, commit, built string) {
	version, commit, built = Version, GitCommit, BuildTime

	info, ok := readBuildInfo()
	if !ok {
		return version, commit, built
	}
	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && commit == "unknown":
			commit = s.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case s.Key == "vcs.time" && built == "unknown":
			built = s.Value
		}
	}
	return version, commit, built
}

// String is the one-line form printed by "cypherguard version".
func String() string {
	v, c, b := build()
	return fmt.Sprintf("cypherguard %s (commit: %s, built: %s, go: %s)", v, c, b, runtime.Version())
}

// Info is the structured form used for json and yaml output.
func Info() map[string]string {
	v, c, b := build()
	return map[string]string{
		"version":   v,
		"commit":    c,
		"buildTime": b,
		"goVersion": runtime.Version(),
		"platform":  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
