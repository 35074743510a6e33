// Package main is the entry point for the foundry command.
package main

import (
	"os"

	"foundry/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
