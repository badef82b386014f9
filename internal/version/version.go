// Package version holds build-time version metadata, set via -ldflags.
package version

var (
	// Version is the semantic version or git describe string.
	Version = "dev"
	// Commit is the git commit SHA the binary was built from.
	Commit = "none"
)
