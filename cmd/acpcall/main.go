// Package main provides the entry point for the acpcall CLI.
package main

import (
	"fmt"
	"os"

	"github.com/acpcall/acpcall/cmd/acpcall/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
