package main

import (
	"os"

	"github.com/yndnr/ledgersnap/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		command.PrintError("%v", err)
		os.Exit(command.ExitCode(err))
	}
}
