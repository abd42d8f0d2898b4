// Package main provides the entry point for sandstore-cli.
package main

import (
	"os"

	"github.com/yndnr/sandstore-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		command.PrintError("%v", err)
		os.Exit(1)
	}
}
