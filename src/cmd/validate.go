package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"lcs35/src/checkpoint"
	"lcs35/src/validator"
)

// ValidateCommand registers the `validate` subcommand: independent,
// multi-threaded re-derivation between stored checkpoints (§4.3), over any
// mix of text-format files and relational stores named on the command
// line.
func ValidateCommand() cli.Command {
	return cli.Command{
		Name:      "validate",
		Usage:     "independently re-derive and cross-check stored checkpoints",
		ArgsUsage: "CHECKPOINT [CHECKPOINT...]",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "workers",
				Value: validator.DefaultWorkers,
				Usage: "number of concurrent re-computation workers",
			},
			cli.Uint64Flag{
				Name:  "batch",
				Value: validator.DefaultBatch,
				Usage: "number of sequential squarings per re-computation step",
			},
		},
		Action: func(c *cli.Context) error {
			paths := c.Args()
			if len(paths) == 0 {
				return errors.New("validate: at least one checkpoint path is required")
			}

			entries, err := loadEntries(paths)
			if err != nil {
				return err
			}

			queue, err := validator.NewQueue(entries)
			if err != nil {
				return err
			}

			results, err := validator.Run(queue, c.Int("workers"), c.Uint64("batch"))
			for _, r := range results {
				status := "OK"
				if !r.Valid {
					status = "MISMATCH"
				}
				fmt.Printf("[%s] i=%d -> i=%d\n", status, r.Segment.Prev.Session.I, r.Segment.Next.Session.I)
			}
			return err
		},
	}
}

// loadEntries loads every named checkpoint, recording the format each was
// read from so the validator can re-persist its bookkeeping correctly
// (text n_validations vs. relational last_computed, §4.3 step 4).
func loadEntries(paths []string) ([]*validator.Entry, error) {
	entries := make([]*validator.Entry, 0, len(paths))
	for _, path := range paths {
		s, result, err := checkpoint.Load(path)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", path)
		}
		if result != checkpoint.Resumed {
			return nil, errors.Errorf("%s: %s", path, result)
		}

		format, err := checkpoint.DetectFormat(path)
		if err != nil {
			return nil, err
		}

		s.SourceTag = path
		entries = append(entries, &validator.Entry{Session: s, Path: path, Format: format})
	}
	return entries, nil
}
