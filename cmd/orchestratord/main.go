// Package main provides the entry point for the orchestrator daemon/CLI.
package main

import (
	"fmt"
	"os"

	"github.com/flowline-ai/orchestrator/cmd/orchestratord/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
