// Package version provides build-time version information.
package version

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.1.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// String returns the version with the short commit hash when one is set.
func String() string {
	if GitCommit == "unknown" || len(GitCommit) < 7 {
		return Version
	}
	return Version + " (" + GitCommit[:7] + ")"
}
