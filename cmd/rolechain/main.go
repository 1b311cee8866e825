// cmd/rolechain/main.go
//
// Entry point for the rolechain CLI. Every subcommand loads .rolechain from
// the project directory, restores the last snapshot and acts on the engine.

package main

import (
	"os"

	"github.com/kingrea/rolechain/internal/command"
)

func main() {
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
