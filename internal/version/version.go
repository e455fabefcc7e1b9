// Package version carries build metadata stamped in with -ldflags -X.
package version

import "fmt"

var (
	// Version is the release tag of the hailfilter build
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the metadata for -version output.
func String() string {
	return fmt.Sprintf("hailfilter %s (%s, built %s)", Version, GitSHA, BuildTime)
}
