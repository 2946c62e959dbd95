// Package main is the entry point for the conveyr CLI.
package main

import (
	"os"

	"github.com/conveyr/conveyr/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
