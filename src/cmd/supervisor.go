package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"lcs35/src/supervisor"
)

// SupervisorCommand registers the `supervisor` subcommand: the networked
// checkpoint broker a fleet of `solve` processes can share, grounded on
// original_source/supervisor.c.
func SupervisorCommand() cli.Command {
	return cli.Command{
		Name:  "supervisor",
		Usage: "serve a shared relational checkpoint store to networked solvers",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "addr",
				Value: ":4242",
				Usage: "address to listen on",
			},
			cli.StringFlag{
				Name:  "db",
				Value: "savefile.db",
				Usage: "relational checkpoint store path",
			},
		},
		Action: func(c *cli.Context) error {
			listener, err := supervisor.Listen(c.String("addr"))
			if err != nil {
				return err
			}
			fmt.Printf("listening on %s\n", c.String("addr"))
			return supervisor.Serve(listener, c.String("db"))
		},
	}
}
