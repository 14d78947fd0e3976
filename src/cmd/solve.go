package cmd

import (
	"github.com/urfave/cli"

	"lcs35/src/checkpoint"
	"lcs35/src/runner"
)

// SolveCommand registers the `solve` subcommand: the single-threaded
// work/check/save/show-progress loop against a local checkpoint file
// (§5), adapted from the teacher's per-command flag.FlagSet style onto
// urfave/cli (the teacher has no direct networked-CLI precedent of its
// own; the corpus's shape for this comes from xtaci-kcptun's client/main.go).
func SolveCommand() cli.Command {
	return cli.Command{
		Name:      "solve",
		Usage:     "run the puzzle computation, checkpointing as it goes",
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "path",
				Value: "savefile",
				Usage: "checkpoint file to resume from and save to",
			},
			cli.BoolFlag{
				Name:  "relational",
				Usage: "use the single-file relational checkpoint format instead of flat text",
			},
			cli.Uint64Flag{
				Name:  "batch",
				Value: runner.DefaultBatch,
				Usage: "number of sequential squarings per batch",
			},
			cli.Uint64Flag{
				Name:  "checkpoint-every",
				Value: runner.DefaultCheckpointEvery,
				Usage: "number of batches between checkpoint writes",
			},
			cli.BoolFlag{
				Name:  "verify",
				Usage: "reload and re-check every checkpoint write before trusting it",
			},
		},
		Action: func(c *cli.Context) error {
			format := checkpoint.FormatText
			if c.Bool("relational") {
				format = checkpoint.FormatRelational
			}

			_, err := runner.Run(runner.Options{
				Path:            c.String("path"),
				Format:          format,
				Batch:           c.Uint64("batch"),
				CheckpointEvery: c.Uint64("checkpoint-every"),
				Verify:          c.Bool("verify"),
			})
			return err
		},
	}
}
