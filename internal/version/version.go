// Package version holds build-time identifiers injected via -ldflags.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// Commit is the short git SHA of the build.
	Commit = "unknown"
)
