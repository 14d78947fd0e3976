package validator

import (
	"math/big"
	"path/filepath"
	"testing"

	"lcs35/src/checkpoint"
	"lcs35/src/session"
)

func smallCompatibleSessions(t *testing.T, checkpoints ...uint64) []*session.Session {
	t.Helper()

	base := &session.Session{
		T: checkpoints[len(checkpoints)-1],
		I: 0,
		C: big.NewInt(101),
		N: big.NewInt(97 * 103),
		W: big.NewInt(2),
	}
	base.RefreshNTimesC()

	sessions := make([]*session.Session, 0, len(checkpoints))
	cursor := session.Copy(base)
	for _, target := range checkpoints {
		session.Work(cursor, target-cursor.I)
		sessions = append(sessions, session.Copy(cursor))
	}
	return sessions
}

func entriesFromSessions(t *testing.T, sessions []*session.Session) []*Entry {
	t.Helper()

	entries := make([]*Entry, 0, len(sessions))
	for idx, s := range sessions {
		path := filepath.Join(t.TempDir(), "checkpoint")
		if err := checkpoint.Save(s, path, checkpoint.FormatText); err != nil {
			t.Fatalf("saving checkpoint %d: %v", idx, err)
		}
		entries = append(entries, &Entry{Session: s, Path: path, Format: checkpoint.FormatText})
	}
	return entries
}

func TestRunValidatesGenuineCheckpointChain(t *testing.T) {
	sessions := smallCompatibleSessions(t, 100, 250, 400)
	entries := entriesFromSessions(t, sessions)

	queue, err := NewQueue(entries)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	results, err := Run(queue, 2, 17)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 segment results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Valid {
			t.Fatalf("segment i=%d -> i=%d reported invalid",
				r.Segment.Prev.Session.I, r.Segment.Next.Session.I)
		}
	}
}

func TestRunDetectsTamperedCheckpoint(t *testing.T) {
	sessions := smallCompatibleSessions(t, 100, 250)
	// Tamper with the stored end state so it no longer matches a genuine
	// re-derivation from the start state.
	sessions[1].W.Add(sessions[1].W, big.NewInt(2))

	entries := entriesFromSessions(t, sessions)
	queue, err := NewQueue(entries)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	results, err := Run(queue, 1, 17)
	if err != nil {
		t.Fatalf("Run should not itself error on a mismatch: %v", err)
	}
	if len(results) != 1 || results[0].Valid {
		t.Fatalf("expected a single invalid segment result, got %+v", results)
	}
}

func TestNewQueueRejectsIncompatibleCheckpoints(t *testing.T) {
	a := &session.Session{T: 100, I: 0, C: big.NewInt(101), N: big.NewInt(97 * 103), W: big.NewInt(2)}
	a.RefreshNTimesC()
	b := &session.Session{T: 100, I: 50, C: big.NewInt(101), N: big.NewInt(89 * 83), W: big.NewInt(2)}
	b.RefreshNTimesC()

	_, err := NewQueue([]*Entry{
		{Session: a, Path: "a", Format: checkpoint.FormatText},
		{Session: b, Path: "b", Format: checkpoint.FormatText},
	})
	if err == nil {
		t.Fatalf("expected NewQueue to reject checkpoints with different moduli")
	}
}

func TestQueueSkipsSegmentsAboveMinValidations(t *testing.T) {
	sessions := smallCompatibleSessions(t, 100, 250, 400)
	entries := entriesFromSessions(t, sessions)
	entries[2].Session.NValidations = 5 // already validated more than the others

	q, err := NewQueue(entries)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	var segments []Segment
	for {
		seg, ok := q.next()
		if !ok {
			break
		}
		segments = append(segments, seg)
	}

	if len(segments) != 1 {
		t.Fatalf("expected only the less-validated segment to be scheduled, got %d", len(segments))
	}
	if segments[0].Next.Session.I != 250 {
		t.Fatalf("expected the segment ending at i=250, got i=%d", segments[0].Next.Session.I)
	}
}
