// Package main provides the pagemedia CLI entry point: browse and manage
// the media library, and export or import page projects.
package main

import (
	"fmt"
	"os"

	"github.com/fruitsalade/pagemedia/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
