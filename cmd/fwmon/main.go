package main

import (
	"os"

	"github.com/mensfeld/fwmon/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
