// Package validator implements independent, multi-threaded re-computation
// between stored checkpoints (§4.3). A fixed-size pool of workers pulls
// segments from a mutex-guarded cursor over the sorted checkpoint sequence
// and re-derives each segment's end state from its start state, flagging
// any disagreement with the stored value.
package validator

import (
	"math/big"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"lcs35/src/checkpoint"
	"lcs35/src/session"
)

// DefaultWorkers is the default pool size (§4.3 Parallelism).
const DefaultWorkers = 4

// DefaultBatch is the tunable re-squaring batch size used between progress
// observations within a segment (§4.3 step 2).
const DefaultBatch uint64 = 1 << 20

// DensifyEvery is the i-boundary at which the validator emits a fresh
// checkpoint into a relational store while re-deriving a segment, so that a
// validation run leaves a denser recoverable trail than the original
// computation (§4.3 step 3).
const DensifyEvery uint64 = 1 << 25

// Entry is one stored checkpoint under validation, carrying enough of its
// origin to be re-persisted afterwards (an n_validations bump for a text
// file, or a fresh/touched row for a relational store).
type Entry struct {
	Session *session.Session
	Path    string
	Format  checkpoint.Format
}

// Segment is the independent re-computation unit between two consecutive
// checkpoints (§4.3, GLOSSARY).
type Segment struct {
	Prev *Entry
	Next *Entry
}

// Result reports the outcome of re-deriving one segment.
type Result struct {
	Segment Segment
	Valid   bool
	Got     *big.Int
}

// Queue is the shared cursor over a sorted, compatibility-checked list of
// entries. Each acquisition of the lock retrieves the next segment's tuple
// and advances the cursor; the actual re-computation then runs lock-free
// (§4.3 Parallelism, §5).
type Queue struct {
	mu      sync.Mutex
	entries []*Entry
	cursor  int
	minNV   int64
}

// NewQueue sorts entries by i, verifies pairwise compatibility, and
// precomputes the minimum n_validations across them for the
// balanced-coverage scheduling hint (§4.3 Scheduling).
func NewQueue(entries []*Entry) (*Queue, error) {
	if len(entries) < 2 {
		return &Queue{entries: entries}, nil
	}

	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Session.I < sorted[j].Session.I
	})

	min := sorted[0].Session.NValidations
	for i := 1; i < len(sorted); i++ {
		if !session.IsCompatible(sorted[i-1].Session, sorted[i].Session) {
			return nil, errors.New("validator: checkpoints are not mutually compatible")
		}
		if sorted[i].Session.NValidations < min {
			min = sorted[i].Session.NValidations
		}
	}

	return &Queue{entries: sorted, minNV: min}, nil
}

// next pops the next segment tuple, skipping (for this run) segments whose
// target checkpoint has already been validated more than the current
// minimum, so validation coverage stays balanced across a run (§4.3
// Scheduling). It returns ok=false once the cursor is exhausted.
func (q *Queue) next() (Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.cursor+1 < len(q.entries) {
		prev := q.entries[q.cursor]
		next := q.entries[q.cursor+1]
		q.cursor++

		if next.Session.NValidations > q.minNV {
			continue
		}
		return Segment{Prev: prev, Next: next}, true
	}
	return Segment{}, false
}

// Run starts numWorkers goroutines pulling segments from q, re-deriving
// each independently, and returns every segment's result once all workers
// have drained the queue and finished their in-flight segment (§4.3, §5).
//
// If any worker observes an internal consistency-check failure while
// re-deriving a segment, it records the error and stops taking new work;
// in-flight segments on other workers still run to completion — there is
// no soft cancellation (§4.3 Cancellation).
func Run(q *Queue, numWorkers int, batch uint64) ([]Result, error) {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	if batch == 0 {
		batch = DefaultBatch
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Result
		fatal   atomic.Value // holds error
		stopped int32
	)

	worker := func() {
		defer wg.Done()
		for atomic.LoadInt32(&stopped) == 0 {
			seg, ok := q.next()
			if !ok {
				return
			}

			res, err := runSegment(seg, batch)
			if err != nil {
				fatal.Store(err)
				atomic.StoreInt32(&stopped, 1)
				return
			}

			if err := persist(seg, res); err != nil {
				fatal.Store(err)
				atomic.StoreInt32(&stopped, 1)
				return
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go worker()
	}
	wg.Wait()

	if v := fatal.Load(); v != nil {
		return results, v.(error)
	}
	return results, nil
}

// runSegment re-derives one segment from its predecessor, per §4.3 step 1-2:
// a private session is seeded at (i_prev, w_prev) with t = i_next, then
// advanced in `batch`-sized steps until it reaches i_next. It also emits
// densifying checkpoints into a relational store every DensifyEvery steps.
func runSegment(seg Segment, batch uint64) (Result, error) {
	prevSession := seg.Prev.Session
	nextSession := seg.Next.Session

	s := &session.Session{
		T: nextSession.I,
		I: prevSession.I,
		C: prevSession.C,
		N: prevSession.N,
		W: new(big.Int).Set(prevSession.W),
	}
	s.RefreshNTimesC()

	densify := seg.Next.Format == checkpoint.FormatRelational
	nextDensifyBoundary := ((s.I >> 25) + 1) << 25

	finalTarget := s.T
	for s.I < finalTarget {
		subTarget := finalTarget
		if densify && nextDensifyBoundary < finalTarget {
			subTarget = nextDensifyBoundary
		}
		s.T = subTarget

		for {
			done := session.Work(s, batch)
			if !session.Check(s) {
				return Result{}, errors.Errorf("validator: inconsistency detected at i=%d", s.I)
			}
			if done == 0 {
				break
			}
		}

		if densify && subTarget == nextDensifyBoundary && s.I < finalTarget {
			if err := checkpoint.Save(s, seg.Next.Path, checkpoint.FormatRelational); err != nil {
				return Result{}, err
			}
			nextDensifyBoundary += DensifyEvery
		}
	}
	s.T = finalTarget

	valid := s.W.Cmp(nextSession.W) == 0
	return Result{Segment: seg, Valid: valid, Got: s.W}, nil
}

// persist applies §4.3 step 4's bookkeeping: a text-format checkpoint has
// its n_validations counter incremented and is re-saved; a relational
// checkpoint merely has its last_computed timestamp touched, since the
// relational schema carries no such counter (§9 Open Question 2).
func persist(seg Segment, res Result) error {
	if !res.Valid {
		// an INVALID segment is reported by the caller (Run's results) but
		// is not itself a reason to bump any validation counter.
		return nil
	}

	switch seg.Next.Format {
	case checkpoint.FormatText:
		seg.Next.Session.NValidations++
		return checkpoint.Save(seg.Next.Session, seg.Next.Path, checkpoint.FormatText)
	case checkpoint.FormatRelational:
		return checkpoint.UpdateLastComputed(seg.Next.Path, seg.Next.Session.I)
	default:
		return nil
	}
}
