// brocoli - browse and synchronize file catalogs from the command line.
package main

import (
	"os"

	_ "github.com/rescale/brocoli/internal/catalog/all"
	"github.com/rescale/brocoli/internal/cli"
	"github.com/rescale/brocoli/internal/version"
)

// Version information, overridden with -ldflags "-X main.Version=...".
var (
	Version   = "v0.1.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
