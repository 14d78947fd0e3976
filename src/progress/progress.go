// Package progress renders the carriage-return-overwrite progress line and
// the human-friendly relative/absolute ETA the runner prints to stderr
// (§6). It is deliberately a thin collaborator: no algorithmic content,
// just formatting.
package progress

import (
	"fmt"
	"math"
	"time"
)

// Tracker accumulates the samples needed to estimate a rate and an ETA
// across successive calls to Line, mirroring the teacher's ProgressBar and
// the original's prev_i/prev_time pair (original_source/work.c show_progress).
type Tracker struct {
	prevI    uint64
	prevTime time.Time
}

// NewTracker starts a tracker at the given initial position.
func NewTracker(i uint64) *Tracker {
	return &Tracker{prevI: i, prevTime: time.Now()}
}

// Line formats one progress line: percentage, hex-formatted (i, t), and an
// ETA in both relative and absolute form (§6). It does not print anything;
// callers write it to stderr themselves (with a leading "\r" and a
// line-clear as the teacher's ProgressBar does).
func (t *Tracker) Line(i, target uint64) string {
	now := time.Now()
	unitsPerSecond := float64(i-t.prevI) / now.Sub(t.prevTime).Seconds()
	secondsLeft := float64(target-i) / unitsPerSecond

	eta := "unknown"
	if !math.IsInf(secondsLeft, 0) && !math.IsNaN(secondsLeft) {
		eta = HumanBoth(secondsLeft)
	}

	percent := 100 * float64(i) / float64(target)
	line := fmt.Sprintf("%9.6f%% (%#012x / %#012x) ETA: %s", percent, i, target, eta)

	t.prevI, t.prevTime = i, now
	return line
}

// HumanRelative formats a duration (in seconds) the way a person would say
// it: "1.0 second", "42 seconds", "01:02:03", "3 days 01:02:03",
// "1 year 42 days", "2 years 42 days" (original_source/lcs35.c
// human_time_relative).
func HumanRelative(secs float64) string {
	seconds := int(secs)
	if seconds < 2 {
		return fmt.Sprintf("%.1f second", secs)
	}

	minutes := seconds / 60
	seconds %= 60
	if minutes < 1 {
		return fmt.Sprintf("%d seconds", seconds)
	}

	hours := minutes / 60
	minutes %= 60
	days := hours / 24
	hours %= 24
	if days < 1 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}

	years := days / 365
	days %= 365
	if years < 1 {
		return fmt.Sprintf("%d days %02d:%02d:%02d", days, hours, minutes, seconds)
	}
	if years < 2 {
		return fmt.Sprintf("1 year %d days", days)
	}
	return fmt.Sprintf("%d years %d days", years, days)
}

// HumanAbsolute formats the wall-clock instant secs seconds in the future
// as "YYYY-MM-DD HH:MM:SS" (original_source/lcs35.c human_time_absolute).
func HumanAbsolute(secs float64) string {
	when := time.Now().Add(time.Duration(secs * float64(time.Second)))
	return when.Format("2006-01-02 15:04:05")
}

// HumanBoth combines the relative and absolute renderings: "1 year 42 days
// (2027-09-10 12:00:00)".
func HumanBoth(secs float64) string {
	return fmt.Sprintf("%s (%s)", HumanRelative(secs), HumanAbsolute(secs))
}
