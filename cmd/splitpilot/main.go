package main

import (
	"os"

	"github.com/splitpilot/splitpilot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
