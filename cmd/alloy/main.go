// Package main provides the entry point for the alloy CLI.
package main

import (
	"os"

	"github.com/alloysearch/alloy/cmd/alloy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
