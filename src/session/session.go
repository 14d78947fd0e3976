// Package session implements the LCS35 puzzle session: the mutable state
// (t, i, c, n, w, n*c) of a single computation, the step function that
// advances it by a requested number of modular squarings, and the Shamir
// consistency check that catches a silent bit-flip before it is squared
// into the rest of the chain.
package session

import (
	"math/big"
	"math/bits"

	"github.com/pkg/errors"
)

const (
	// DefaultC is the published LCS35 control prime (decimal), chosen small
	// enough that 2^(2^i) mod c can be recomputed in O(log i) via Fermat's
	// little theorem.
	DefaultC uint64 = 2446683847

	// DefaultT is the published LCS35 target exponent.
	DefaultT uint64 = 79685186856218

	// DefaultN is the published LCS35 2048-bit RSA modulus, reproduced
	// verbatim from Rivest's 1999 time-capsule announcement.
	DefaultN = "" +
		"631446608307288889379935712613129233236329881833084137558899" +
		"077270195712892488554730844605575320651361834662884894808866" +
		"350036848039658817136198766052189726781016228055747539383830" +
		"826175971321892666861177695452639157012069093997368008972127" +
		"446466642331918780683055206795125307008202024124623398241073" +
		"775370512734449416950118097524189066796385875485631980550727" +
		"370990439711973361466670154390536015254337398252457931357531" +
		"765364633198906465140213398526580034199190398219284471021246" +
		"488745938885358207031808428902320971090703239693491996277899" +
		"532332018406452247646396635593736700936921275809208629319872" +
		"7008292431243681"
)

// Session holds the full state of one LCS35 computation: the immutable
// puzzle parameters (N, C, T) and the mutable progress (I, W), plus the
// derived N*C cache and optional bookkeeping metadata.
//
// A zero Session is not valid; use New or a Load from the checkpoint
// package. Copy yields an independent deep copy — mutating one Session
// never affects another.
type Session struct {
	T uint64   // target exponent
	I uint64   // current exponent, 0 <= I <= T
	C *big.Int // small control prime
	N *big.Int // RSA modulus
	W *big.Int // 2^(2^I) mod (N*C)

	NTimesC *big.Int // cached N * C, refreshed whenever N or C changes

	// NValidations counts independent re-computations that have
	// corroborated this session (text format only, §3).
	NValidations int64
	// SourceTag is an opaque diagnostic label (e.g. a file path) used by
	// the validator to identify a session in log output.
	SourceTag string
}

// New returns a session initialised to the published LCS35 defaults:
// i=0, w=2, with the fixed challenge modulus, control prime and target
// exponent. It performs no I/O.
func New() *Session {
	n, ok := new(big.Int).SetString(DefaultN, 10)
	if !ok {
		// DefaultN is a compile-time constant; this can only fail if the
		// literal above was mistyped.
		panic("session: malformed built-in modulus literal")
	}
	c := new(big.Int).SetUint64(DefaultC)

	s := &Session{
		T: DefaultT,
		I: 0,
		C: c,
		N: n,
		W: big.NewInt(2),
	}
	s.refreshNTimesC()
	return s
}

// Copy deep-copies all big integers and scalars; the result is fully
// independent of s.
func Copy(s *Session) *Session {
	return &Session{
		T:            s.T,
		I:            s.I,
		C:            new(big.Int).Set(s.C),
		N:            new(big.Int).Set(s.N),
		W:            new(big.Int).Set(s.W),
		NTimesC:      new(big.Int).Set(s.NTimesC),
		NValidations: s.NValidations,
		SourceTag:    s.SourceTag,
	}
}

func (s *Session) refreshNTimesC() {
	s.NTimesC = new(big.Int).Mul(s.N, s.C)
}

// RefreshNTimesC recomputes the N*C cache; callers must invoke it whenever
// N or C is mutated outside of New/Copy (e.g. after populating a session
// from a checkpoint).
func (s *Session) RefreshNTimesC() {
	s.refreshNTimesC()
}

// sixteen is the shift amount of the 64-bit exponent decomposition sketched
// at powTwoShift; Work does not perform that decomposition, so it is unused.
const sixteen = 16

// Work advances the session by up to amount squarings and returns how many
// were actually performed. It clamps amount to t-i, computes
// w <- w^(2^amount) mod (n*c) as a single modular exponentiation (the
// underlying library performs binary exponentiation internally, which has
// the effect of `amount` modular squarings), and increments i by the
// clamped amount.
//
// math/big's Exp takes an exponent of arbitrary bit length, so the §4.1
// decomposition for narrower-exponent libraries is not needed here; the
// helper powTwoShift documents the shape that decomposition would take.
func Work(s *Session, amount uint64) uint64 {
	remaining := s.T - s.I
	if amount > remaining {
		amount = remaining
	}
	if amount == 0 {
		return 0
	}

	exponent := powTwoShift(amount)
	s.W = new(big.Int).Exp(s.W, exponent, s.NTimesC)
	s.I += amount

	return amount
}

// powTwoShift returns 2^amount as a big.Int via a single bit-set, mirroring
// the original's mpz_setbit(tmp, amount). amount need not fit in a machine
// word of a narrower exponent type; were math/big's Exp limited to, say, a
// 32-bit exponent, the decomposition would be:
//
//	high, low := amount>>32, amount&0xffffffff
//	e := ((base.Exp(high)).Exp(1<<16)).Exp(1<<16) * base.Exp(low)  (mod n*c)
//
// computed without ever overwriting base before the final multiply, so that
// aliasing between the session's W and the result is respected. math/big
// imposes no such limit, so Exp is called directly with the full-width
// exponent.
func powTwoShift(amount uint64) *big.Int {
	e := new(big.Int)
	e.SetBit(e, int(amount), 1)
	return e
}

// phiC returns c-1, the value of Euler's totient of c since c is prime.
func phiC(c *big.Int) *big.Int {
	return new(big.Int).Sub(c, big.NewInt(1))
}

// powModU64 computes base^exp mod m using machine-word binary
// exponentiation, independent of math/big's Exp, for use by Check.
func powModU64(base, exp, mod uint64) uint64 {
	result := uint64(1)
	base %= mod
	for exp > 0 {
		// 128-bit intermediate products, so any 64-bit modulus is safe.
		if exp&1 == 1 {
			hi, lo := bits.Mul64(result, base)
			result = bits.Rem64(hi, lo, mod)
		}
		exp >>= 1
		hi, lo := bits.Mul64(base, base)
		base = bits.Rem64(hi, lo, mod)
	}
	return result
}

// Check performs the Shamir consistency check: since c is prime,
// 2^(2^i) mod c = 2^(2^i mod (c-1)) mod c. It independently recomputes the
// right-hand side with machine-word arithmetic and compares it to w mod c
// (a cheap single-limb reduction of the full w). A mismatch means a
// computation error occurred somewhere in the squaring chain so far.
func Check(s *Session) bool {
	if s.C.IsUint64() && s.C.Uint64() < (1<<63) {
		c := s.C.Uint64()
		e := powModU64(2, s.I, c-1)
		expected := powModU64(2, e, c)

		wModC := new(big.Int).Mod(s.W, s.C).Uint64()
		return wModC == expected
	}

	// c does not fit a machine word (future larger control primes, §3):
	// fall back to big.Int arithmetic throughout.
	cMinus1 := phiC(s.C)
	e := new(big.Int).Exp(big.NewInt(2), new(big.Int).SetUint64(s.I), cMinus1)
	expected := new(big.Int).Exp(big.NewInt(2), e, s.C)
	wModC := new(big.Int).Mod(s.W, s.C)
	return wModC.Cmp(expected) == 0
}

// MustCheck returns an error if Check fails (it does not panic); callers on
// the runner's fatal path use this to convert a diagnosis into a
// stop-the-world error (§4.1 Failure semantics, §7).
func MustCheck(s *Session) error {
	if !Check(s) {
		return errors.Errorf("session: consistency check failed at i=%d", s.I)
	}
	return nil
}

// IsCompatible reports whether a and b describe the same puzzle (same
// control prime and modulus).
func IsCompatible(a, b *Session) bool {
	return a.C.Cmp(b.C) == 0 && a.N.Cmp(b.N) == 0
}

// IsAfter reports whether after is a compatible, equal-or-later state than
// before. Used by the checkpoint store's recovery logic and by the
// validator's merge step.
func IsAfter(before, after *Session) bool {
	return IsCompatible(before, after) && before.I <= after.I
}

// Result reduces w modulo n to produce the puzzle's final decimal answer.
// Only meaningful once i has reached t.
func Result(s *Session) *big.Int {
	return new(big.Int).Mod(s.W, s.N)
}
