// Package operations holds the core logic behind each CLI subcommand,
// kept separate from flag parsing so it can be tested without going
// through cmd (adapted from the teacher's operations/benchmark.go split).
package operations

import (
	"time"

	"lcs35/src/progress"
	"lcs35/src/session"
)

// BenchmarkOptions parameterizes RunBenchmark.
type BenchmarkOptions struct {
	Duration time.Duration
	Samples  int
}

// BenchmarkSample is the outcome of one timed run of repeated squarings.
type BenchmarkSample struct {
	Squarings    uint64
	Elapsed      time.Duration
	OpsPerSecond float64
}

// BenchmarkResult aggregates every sample plus a projected completion time
// for the full puzzle at the measured rate.
type BenchmarkResult struct {
	Samples         []BenchmarkSample
	TotalSquarings  uint64
	TotalTime       time.Duration
	AvgOpsPerSecond float64
	EstimatedTotal  string
}

// RunBenchmark measures this host's modular-squaring throughput against
// the actual puzzle modulus (n*c, not a synthetic one) by repeatedly
// calling session.Work on a scratch session, then projects how long the
// full t squarings would take at that rate.
func RunBenchmark(opts BenchmarkOptions) (*BenchmarkResult, error) {
	if opts.Samples <= 0 {
		opts.Samples = 3
	}

	var samples []BenchmarkSample
	var totalSquarings uint64
	var totalTime time.Duration

	for i := 0; i < opts.Samples; i++ {
		squarings, elapsed := benchmarkSquaring(opts.Duration)
		sample := BenchmarkSample{
			Squarings:    squarings,
			Elapsed:      elapsed,
			OpsPerSecond: float64(squarings) / elapsed.Seconds(),
		}
		samples = append(samples, sample)
		totalSquarings += squarings
		totalTime += elapsed
	}

	avgOpsPerSecond := float64(totalSquarings) / totalTime.Seconds()
	secondsForFullPuzzle := float64(session.DefaultT) / avgOpsPerSecond

	return &BenchmarkResult{
		Samples:         samples,
		TotalSquarings:  totalSquarings,
		TotalTime:       totalTime,
		AvgOpsPerSecond: avgOpsPerSecond,
		EstimatedTotal:  progress.HumanBoth(secondsForFullPuzzle),
	}, nil
}

// benchmarkSquaring advances a scratch session (seeded at the real puzzle
// parameters, i=0) in 4096-squaring steps until duration has elapsed, and
// returns how many squarings were performed.
func benchmarkSquaring(duration time.Duration) (uint64, time.Duration) {
	s := session.New()

	var squarings uint64
	start := time.Now()
	end := start.Add(duration)

	const batch = 4096
	for time.Now().Before(end) {
		if session.Work(s, batch) == 0 {
			break
		}
		squarings += batch
	}

	return squarings, time.Since(start)
}
