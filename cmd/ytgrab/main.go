package main

import (
	"os"

	"github.com/renkel/ytgrab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
