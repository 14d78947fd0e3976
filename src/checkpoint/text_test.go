package checkpoint

import (
	"math/big"
	"testing"

	"lcs35/src/session"
)

func smallSession(t uint64, i uint64) *session.Session {
	s := &session.Session{
		T: t,
		I: i,
		C: big.NewInt(101),
		N: big.NewInt(97 * 103),
		W: big.NewInt(2),
	}
	s.RefreshNTimesC()
	return s
}

func advancedSession(t, target uint64) *session.Session {
	s := smallSession(t, 0)
	session.Work(s, target)
	return s
}

func TestWriteThenParseTextRoundTrips(t *testing.T) {
	s := advancedSession(1000, 250)
	s.NValidations = 3

	data := writeText(s)
	parsed, err := parseText(data)
	if err != nil {
		t.Fatalf("parseText: %v", err)
	}

	if parsed.T != s.T || parsed.I != s.I {
		t.Fatalf("round trip mismatch: got t=%d i=%d, want t=%d i=%d", parsed.T, parsed.I, s.T, s.I)
	}
	if parsed.W.Cmp(s.W) != 0 {
		t.Fatalf("round trip mismatch on w: got %s want %s", parsed.W, s.W)
	}
	if parsed.NValidations != 3 {
		t.Fatalf("n_validations not preserved: got %d", parsed.NValidations)
	}
}

func TestParseTextToleratesMissingNValidations(t *testing.T) {
	s := advancedSession(1000, 250)
	data := writeText(s)

	// Drop the trailing n_validations line to simulate an older file.
	truncated := data[:len(data)-len("0\n")]

	parsed, err := parseText(truncated)
	if err != nil {
		t.Fatalf("parseText on truncated data: %v", err)
	}
	if parsed.NValidations != 0 {
		t.Fatalf("n_validations should default to 0, got %d", parsed.NValidations)
	}
}

func TestParseTextRejectsInconsistentState(t *testing.T) {
	s := advancedSession(1000, 250)
	s.W.Add(s.W, big.NewInt(1))

	_, err := parseText(writeText(s))
	if err == nil {
		t.Fatalf("expected parseText to reject a corrupted w")
	}
}

func TestLooksLikeTextDistinguishesSqliteHeader(t *testing.T) {
	if !looksLikeText([]byte("123\n")) {
		t.Fatalf("plain decimal data should look like text")
	}
	if looksLikeText(sqliteMagic) {
		t.Fatalf("sqlite magic header should not look like text")
	}
}
