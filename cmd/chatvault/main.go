// Package main provides the chatvault command line client.
package main

import (
	"os"

	"github.com/chatvault/chatvault/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
