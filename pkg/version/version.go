// Package version carries build identification stamped in via ldflags.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X github.com/wikistream/wikistream/pkg/version.Version=v1.2.3 ..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the full build identification line.
func String() string {
	return fmt.Sprintf("wikistream %s (commit %s, built %s)", Version, Commit, Date)
}
