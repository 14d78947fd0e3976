// Package runner drives the single-threaded work/check/save/show-progress
// main loop (§5): it loads (or starts) a session, installs a SIGINT handler
// only once that session is safely in memory, and repeatedly advances the
// computation in batches, checkpointing and reporting progress as it goes.
package runner

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"

	"lcs35/src/checkpoint"
	"lcs35/src/cpuinfo"
	"lcs35/src/progress"
	"lcs35/src/session"
)

// DefaultBatch is the re-squaring step size between consistency checks and
// progress updates (original_source/lcs35.c's 1ULL<<20 stepsize).
const DefaultBatch uint64 = 1 << 20

// DefaultCheckpointEvery is how many batches elapse between checkpoint
// writes when Options.CheckpointEvery is zero (original_source/work.c's
// `(session->i >> 20) % 32 == 0`, i.e. every 32 batches).
const DefaultCheckpointEvery uint64 = 32

// Options configures a Run.
type Options struct {
	// Path is the checkpoint file to load from and save to.
	Path string
	// Format selects the wire format used for new saves; Load auto-detects
	// the format of an existing file regardless of this setting.
	Format checkpoint.Format
	// Batch is the squaring step size; DefaultBatch is used if zero.
	Batch uint64
	// CheckpointEvery is how many batches elapse between saves;
	// DefaultCheckpointEvery is used if zero. A value of 1 saves after
	// every batch. Saves go through SaveAndVerify only when Verify is set;
	// otherwise they use Save, which does not reload the written file.
	CheckpointEvery uint64
	// Verify, when true, uses checkpoint.SaveAndVerify instead of
	// checkpoint.Save for every checkpoint write (§4.2.5).
	Verify bool
	// Stderr receives the CPU banner and progress line; defaults to
	// os.Stderr when nil. Tests can redirect it to capture output without
	// touching the real terminal.
	Stderr io.Writer
	// NewSession builds the starting session when no checkpoint exists yet;
	// defaults to session.New (the published LCS35 parameters). Tests
	// substitute a session with a much smaller T so Run completes quickly.
	NewSession func() *session.Session
}

// Run executes the main loop described in §5 against opts.Path, returning
// the final session once i has reached t, or an error on a detected
// inconsistency or I/O failure. It installs its own SIGINT handler only
// after the session is fully loaded; on SIGINT it saves the current state
// and terminates the process directly, mirroring
// original_source/work.c's handle_sigint.
func Run(opts Options) (*session.Session, error) {
	batch := opts.Batch
	if batch == 0 {
		batch = DefaultBatch
	}
	checkpointEvery := opts.CheckpointEvery
	if checkpointEvery == 0 {
		checkpointEvery = DefaultCheckpointEvery
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	newSession := opts.NewSession
	if newSession == nil {
		newSession = session.New
	}

	fmt.Fprintln(stderr, cpuinfo.Banner())
	if cpuinfo.SupportsADX() {
		fmt.Fprintln(stderr, "ADX/MULX available: math/big will use its widened assembly kernels")
	}

	s, result, err := checkpoint.RecoverAtStartup(opts.Path)
	if err != nil {
		return nil, errors.Wrap(err, "runner: recovering checkpoint")
	}
	switch result {
	case checkpoint.Resumed:
		// proceed from the recovered state
	case checkpoint.None:
		s = newSession()
	case checkpoint.Invalid:
		return nil, errors.New("runner: checkpoint file is present but unusable")
	}

	save := func() error {
		if opts.Verify {
			return checkpoint.SaveAndVerify(s, opts.Path, opts.Format)
		}
		return checkpoint.Save(s, opts.Path, opts.Format)
	}

	// The SIGINT handler closes over s and save, so it must only be
	// installed once s holds a fully loaded, checked session — an earlier
	// installation risks persisting a half-initialised or empty session if
	// the signal lands mid-load (original_source/work.c's comment on
	// handle_sigint).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Fprint(stderr, "\r\033[K")
		if err := save(); err != nil {
			fmt.Fprintf(stderr, "runner: failed to save on interrupt: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()

	tracker := progress.NewTracker(s.I)
	fmt.Fprint(stderr, tracker.Line(s.I, s.T))

	var batchesSinceCheckpoint uint64
	for session.Work(s, batch) != 0 {
		fmt.Fprint(stderr, "\r\033[K")

		if !session.Check(s) {
			return nil, errors.Errorf("runner: inconsistency detected at i=%d", s.I)
		}

		batchesSinceCheckpoint++
		if batchesSinceCheckpoint >= checkpointEvery {
			if err := save(); err != nil {
				return nil, errors.Wrap(err, "runner: saving checkpoint")
			}
			batchesSinceCheckpoint = 0
		}

		fmt.Fprint(stderr, tracker.Line(s.I, s.T))
	}

	fmt.Fprint(stderr, "\r\033[K")
	if err := save(); err != nil {
		return nil, errors.Wrap(err, "runner: saving final checkpoint")
	}
	fmt.Fprintln(stderr, "Calculation complete.")
	fmt.Fprintf(stderr, "w = %s\n", session.Result(s).String())

	return s, nil
}
