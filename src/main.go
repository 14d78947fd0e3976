package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"lcs35/src/cmd"
)

// version is injected by build flags, following the teacher's own
// SELFBUILD convention for locally built binaries.
var version = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "lcs35"
	app.Usage = "compute, checkpoint, and validate the LCS35 time-lock puzzle"
	app.Version = version
	app.Commands = []cli.Command{
		cmd.SolveCommand(),
		cmd.ValidateCommand(),
		cmd.SupervisorCommand(),
		cmd.BenchmarkCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "lcs35: %v\n", err)
		os.Exit(1)
	}
}
