// Package main is the entry point for dapbridge.
package main

import (
	"context"
	"os"

	"github.com/dshills/dapbridge/internal/cli"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(cli.Execute(context.Background(), cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}))
}
