// Command affinityweave weaves goroutine-affinity checks into a copy of a
// Go module and builds or runs it.
//
// Usage:
//
//	affinityweave build [build flags] [packages]
//	affinityweave run [build flags] package [arguments...]
//	affinityweave weave -o DIR [dir]
//	affinityweave check [dir...]
//	affinityweave version
package main

import (
	"os"

	"github.com/kolkov/affinity/cmd/affinityweave/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are printed by the printer package.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
