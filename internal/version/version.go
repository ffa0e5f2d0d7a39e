// Package version provides build-time metadata for the onfile binaries.
// Version, GitCommit, and BuildDate are injected at compile time via -ldflags.
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Build-time values injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

// Info holds the build metadata for the binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetInfo returns the current build information.
func GetInfo() Info {
	return Info{
		Version:   normalize(version),
		GitCommit: shortCommit(gitCommit),
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable single-line version string without the
// program name, suitable for cobra's --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s %s)",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}

// normalize strips a leading "v" and canonicalizes semver versions. Other
// values such as "dev" are returned unchanged.
func normalize(v string) string {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return v
	}

	return parsed.String()
}

// shortCommit truncates a commit SHA to 7 characters.
func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}

	return commit
}
