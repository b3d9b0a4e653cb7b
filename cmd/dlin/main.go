package main

import (
	"os"

	"github.com/dlinter/dlin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
