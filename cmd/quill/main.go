// Package main is the entry point of the quill CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/quill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
