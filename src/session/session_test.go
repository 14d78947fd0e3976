package session

import (
	"math/big"
	"testing"
)

// smallSession builds a session around a tiny modulus so tests run
// instantly, independent of the real 2048-bit LCS35 challenge.
func smallSession(t uint64) *Session {
	s := &Session{
		T: t,
		I: 0,
		C: big.NewInt(101), // small prime
		N: big.NewInt(97 * 103),
		W: big.NewInt(2),
	}
	s.RefreshNTimesC()
	return s
}

func TestWorkAdvancesAndClamps(t *testing.T) {
	s := smallSession(100)

	if done := Work(s, 40); done != 40 || s.I != 40 {
		t.Fatalf("Work(40) = %d, i = %d; want 40, 40", done, s.I)
	}
	if done := Work(s, 1000); done != 60 || s.I != 100 {
		t.Fatalf("Work(1000) = %d, i = %d; want 60 (clamped), 100", done, s.I)
	}
	if done := Work(s, 1); done != 0 {
		t.Fatalf("Work at i=t should return 0, got %d", done)
	}
}

func TestWorkMatchesRepeatedSquaring(t *testing.T) {
	s := smallSession(16)

	reference := new(big.Int).Set(s.W)
	for i := 0; i < 16; i++ {
		reference.Mul(reference, reference)
		reference.Mod(reference, s.NTimesC)
	}

	Work(s, 16)
	if s.W.Cmp(reference) != 0 {
		t.Fatalf("Work(16) = %s, want %s (16 sequential squarings)", s.W, reference)
	}
}

func TestCheckAcceptsGenuineState(t *testing.T) {
	s := smallSession(1000)
	for s.I < s.T {
		Work(s, 37)
		if !Check(s) {
			t.Fatalf("Check failed on a correctly computed state at i=%d", s.I)
		}
	}
}

func TestCheckRejectsCorruption(t *testing.T) {
	s := smallSession(1000)
	Work(s, 500)
	if !Check(s) {
		t.Fatalf("Check failed before corruption was introduced")
	}

	s.W.Add(s.W, big.NewInt(1)) // flip a bit, as a cosmic ray would
	if Check(s) {
		t.Fatalf("Check passed on a corrupted state")
	}
}

func TestCheckLargeControlPrimeFallback(t *testing.T) {
	// A control prime that does not fit a 63-bit machine word exercises
	// the big.Int fallback path in Check.
	huge, ok := new(big.Int).SetString("170141183460469231731687303715884105727", 10) // 2^127-1 (prime)
	if !ok {
		t.Fatal("failed to parse test prime")
	}
	s := &Session{
		T: 50,
		I: 0,
		C: huge,
		N: big.NewInt(97 * 103),
		W: big.NewInt(2),
	}
	s.RefreshNTimesC()

	Work(s, 50)
	if !Check(s) {
		t.Fatalf("Check failed with a control prime wider than a machine word")
	}
}

func TestCopyIsIndependent(t *testing.T) {
	s := smallSession(100)
	Work(s, 10)

	clone := Copy(s)
	Work(clone, 10)

	if s.I == clone.I {
		t.Fatalf("mutating the clone affected the original: i=%d", s.I)
	}
	if s.W.Cmp(clone.W) == 0 {
		t.Fatalf("mutating the clone's w affected the original's w")
	}
}

func TestIsCompatibleAndIsAfter(t *testing.T) {
	a := smallSession(100)
	b := Copy(a)
	Work(b, 20)

	if !IsCompatible(a, b) {
		t.Fatalf("sessions sharing n and c should be compatible")
	}
	if !IsAfter(a, b) {
		t.Fatalf("b (i=20) should be considered after a (i=0)")
	}
	if IsAfter(b, a) {
		t.Fatalf("a (i=0) should not be considered after b (i=20)")
	}

	c := smallSession(100)
	c.N = big.NewInt(999983 * 999979)
	c.RefreshNTimesC()
	if IsCompatible(a, c) {
		t.Fatalf("sessions with different n should not be compatible")
	}
}

func TestResultReducesModuloN(t *testing.T) {
	s := smallSession(40)
	Work(s, 40)

	want := new(big.Int).Mod(s.W, s.N)
	if Result(s).Cmp(want) != 0 {
		t.Fatalf("Result() = %s, want %s", Result(s), want)
	}
}

func TestNewUsesPublishedDefaults(t *testing.T) {
	s := New()
	if s.T != DefaultT {
		t.Fatalf("New().T = %d, want %d", s.T, DefaultT)
	}
	if s.I != 0 {
		t.Fatalf("New().I = %d, want 0", s.I)
	}
	if s.W.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("New().W = %s, want 2", s.W)
	}
	if !Check(s) {
		t.Fatalf("New() session should pass its own consistency check at i=0")
	}
}
