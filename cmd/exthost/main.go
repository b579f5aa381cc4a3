// Package main provides the entry point for the exthost CLI.
package main

import (
	"os"

	"github.com/exthost/exthost/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
