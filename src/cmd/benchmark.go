package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli"

	"lcs35/src/operations"
)

// BenchmarkCommand registers the `benchmark` subcommand: measures this
// host's modular-squaring throughput and projects a completion time for
// the full puzzle.
func BenchmarkCommand() cli.Command {
	return cli.Command{
		Name:  "benchmark",
		Usage: "measure modular-squaring throughput and project completion time",
		Flags: []cli.Flag{
			cli.DurationFlag{
				Name:  "duration",
				Value: 5 * time.Second,
				Usage: "how long to run each sample",
			},
			cli.IntFlag{
				Name:  "samples",
				Value: 3,
				Usage: "number of samples to take",
			},
		},
		Action: func(c *cli.Context) error {
			result, err := operations.RunBenchmark(operations.BenchmarkOptions{
				Duration: c.Duration("duration"),
				Samples:  c.Int("samples"),
			})
			if err != nil {
				return err
			}

			for i, s := range result.Samples {
				fmt.Printf("sample %d: %d squarings in %v (%.0f/s)\n",
					i+1, s.Squarings, s.Elapsed, s.OpsPerSecond)
			}
			fmt.Printf("\naverage rate: %.0f squarings/second\n", result.AvgOpsPerSecond)
			fmt.Printf("estimated time for the full puzzle: %s\n", result.EstimatedTotal)
			return nil
		},
	}
}
