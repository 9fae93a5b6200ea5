package main

import (
	"os"

	"github.com/wonny/fxcast/cmd/fxcast/commands"
)

// main is the entry point for the fxcast CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/fxcast [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
