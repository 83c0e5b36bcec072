// Package main provides the coachdb CLI, the administrative toolkit for the
// workout application's document database.
package main

import (
	"fmt"
	"os"

	"github.com/mesh-intelligence/coachdb/internal/cli"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "coachdb:", err)
		os.Exit(cli.Code(err))
	}
}
