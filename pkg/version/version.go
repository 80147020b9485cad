// Package version carries build metadata for the junotron binary.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X github.com/newtron-network/junotron/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/junotron/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/junotron/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the one-line version banner.
func Info() string {
	return fmt.Sprintf("junotron %s (%s) built %s", Version, GitCommit, BuildDate)
}
