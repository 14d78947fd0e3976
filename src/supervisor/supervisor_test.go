package supervisor

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"lcs35/src/checkpoint"
	"lcs35/src/session"
)

// shortSession uses the real published modulus and control prime — the
// supervisor always validates a save against the one challenge it serves
// (original_source/supervisor.c's db_append_i_w hardcodes session_new()'s
// constants) — but caps T low enough that a handful of squarings reaches
// it almost instantly.
func shortSession() *session.Session {
	s := session.New()
	s.T = 300
	return s
}

func TestServeResumeAndSaveRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")

	listener, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	go Serve(listener, dbPath)

	addr := listener.Addr().String()

	// An empty store should resume at the defaults (i=0, w=2).
	resumed, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial (empty store): %v", err)
	}
	if resumed.I != 0 {
		t.Fatalf("resumed.I = %d, want 0 on an empty store", resumed.I)
	}

	s := shortSession()
	session.Work(s, 300)
	if err := SaveRemote(addr, s); err != nil {
		t.Fatalf("SaveRemote: %v", err)
	}

	// Give the server goroutine a moment to commit the write before the
	// next connection reads it back.
	time.Sleep(50 * time.Millisecond)

	resumedAgain, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial (after save): %v", err)
	}
	if resumedAgain.I != s.I {
		t.Fatalf("resumedAgain.I = %d, want %d", resumedAgain.I, s.I)
	}
	if resumedAgain.W.Cmp(s.W) != 0 {
		t.Fatalf("resumedAgain.W = %s, want %s", resumedAgain.W, s.W)
	}

	rows, err := checkpoint.ListCheckpoints(dbPath)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one stored checkpoint, got %d", len(rows))
	}
}

func TestSaveRemoteRejectsInconsistentSession(t *testing.T) {
	s := shortSession()
	session.Work(s, 100)
	s.W.Add(s.W, big.NewInt(1))

	if err := SaveRemote("127.0.0.1:1", s); err == nil {
		t.Fatalf("expected SaveRemote to reject an inconsistent session before even dialing")
	}
}
