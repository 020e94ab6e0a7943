package main

import (
	"os"

	"github.com/lifecyclelab/intervene/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
