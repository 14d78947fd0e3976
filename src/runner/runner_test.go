package runner

import (
	"bytes"
	"math/big"
	"path/filepath"
	"testing"

	"lcs35/src/checkpoint"
	"lcs35/src/session"
)

func tinySession() *session.Session {
	s := &session.Session{
		T: 500,
		I: 0,
		C: big.NewInt(101),
		N: big.NewInt(97 * 103),
		W: big.NewInt(2),
	}
	s.RefreshNTimesC()
	return s
}

func TestRunCompletesFromScratch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "savefile")
	var stderr bytes.Buffer

	final, err := Run(Options{
		Path:            path,
		Format:          checkpoint.FormatText,
		Batch:           37,
		CheckpointEvery: 2,
		NewSession:      tinySession,
		Stderr:          &stderr,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.I != final.T {
		t.Fatalf("final.I = %d, want %d (= T)", final.I, final.T)
	}
	if stderr.Len() == 0 {
		t.Fatalf("expected progress output on stderr")
	}
}

func TestRunResumesFromExistingCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "savefile")

	partial := tinySession()
	session.Work(partial, 200)
	if err := checkpoint.Save(partial, path, checkpoint.FormatText); err != nil {
		t.Fatalf("seeding checkpoint: %v", err)
	}

	var stderr bytes.Buffer
	final, err := Run(Options{
		Path:            path,
		Format:          checkpoint.FormatText,
		Batch:           37,
		CheckpointEvery: 2,
		NewSession:      tinySession,
		Stderr:          &stderr,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.I != final.T {
		t.Fatalf("final.I = %d, want %d (= T)", final.I, final.T)
	}
}

func TestRunDetectsInconsistentCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "savefile")

	partial := tinySession()
	session.Work(partial, 200)
	partial.W.Add(partial.W, big.NewInt(3))
	if err := checkpoint.Save(partial, path, checkpoint.FormatText); err != nil {
		t.Fatalf("seeding checkpoint: %v", err)
	}

	var stderr bytes.Buffer
	_, err := Run(Options{
		Path:       path,
		Format:     checkpoint.FormatText,
		NewSession: tinySession,
		Stderr:     &stderr,
	})
	if err == nil {
		t.Fatalf("expected Run to reject a tampered checkpoint")
	}
}
