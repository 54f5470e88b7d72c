// Package main provides the entry point for the stamzoek CLI.
package main

import (
	"os"

	"github.com/stamzoek/stamzoek/cmd/stamzoek/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
