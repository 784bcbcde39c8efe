// Package main provides the entry point for the amanbib CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanbib/cmd/amanbib/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
