package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Software returns the string stamped into the TIFF Software tag.
func Software() string {
	if GitSHA == "unknown" || GitSHA == "" {
		return fmt.Sprintf("gridfiles %s", Version)
	}
	sha := GitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return fmt.Sprintf("gridfiles %s (%s)", Version, sha)
}
