package version

import "fmt"

// Build metadata, overridden with -ldflags "-X" at release time.
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for `demsinks -version` and run records.
func String() string {
	return fmt.Sprintf("demsinks %s (%s, built %s)", Version, GitSHA, BuildTime)
}
