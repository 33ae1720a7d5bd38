// jobson-cli submits and inspects jobs on a Jobson server.
package main

import (
	"os"

	"github.com/jobson/jobson-cli/internal/cli"
	"github.com/jobson/jobson-cli/internal/version"
)

// Set by ldflags: -X main.Version=v1.2.3 -X main.BuildTime=...
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
