package domain

import (
	"fmt"
	"time"

	apperrors "tempo/internal/platform/errors"
)

// Break is one rest interval inside a session. End is nil while the
// break is still open; only the last break in a list may be open.
type Break struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

func (b Break) Open() bool {
	return b.End == nil
}

// Snapshot is the display-facing pair of derived durations. It is
// recomputed from absolute timestamps on every read and never stored,
// so missed ticks, tab suspension, or system sleep cannot skew it.
type Snapshot struct {
	SessionMs int64
	BreakMs   int64
}

// DisplaySecond is the integer second shown to the user; downstream
// updates are suppressed until it changes.
func (s Snapshot) DisplaySecond() int64 {
	return s.SessionMs / 1000
}

func (s Snapshot) BreakSecond() int64 {
	return s.BreakMs / 1000
}

// ValidateBreaks enforces the open-break invariant: every break except
// possibly the last must be closed, and closed breaks must not end
// before they start.
func ValidateBreaks(breaks []Break) error {
	for i, b := range breaks {
		if b.Start.IsZero() {
			return fmt.Errorf("%w: break %d has no start", apperrors.ErrInvalidTimestamp, i)
		}
		if b.Open() {
			if i != len(breaks)-1 {
				return fmt.Errorf("%w: break %d is open but not last", apperrors.ErrInvalidInput, i)
			}
			continue
		}
		if b.End.Before(b.Start) {
			return fmt.Errorf("%w: break %d ends before it starts", apperrors.ErrInvalidInput, i)
		}
	}
	return nil
}

// Compute derives the snapshot for a given instant. It is a pure
// function of its inputs: calling it twice with the same arguments
// yields the same result. Negative spans from clock skew clamp to
// zero; a zero start timestamp is an error so a broken record cannot
// silently display as a fresh session.
func Compute(now, startedAt time.Time, breaks []Break, onBreak bool) (Snapshot, error) {
	if startedAt.IsZero() {
		return Snapshot{}, fmt.Errorf("%w: session start", apperrors.ErrInvalidTimestamp)
	}

	var breakMs int64
	for i, b := range breaks {
		if b.Open() {
			if onBreak && i == len(breaks)-1 {
				breakMs += clampMs(now.Sub(b.Start))
			}
			continue
		}
		breakMs += clampMs(b.End.Sub(b.Start))
	}

	sessionMs := clampMs(now.Sub(startedAt)) - breakMs
	if sessionMs < 0 {
		sessionMs = 0
	}
	return Snapshot{SessionMs: sessionMs, BreakMs: breakMs}, nil
}

// CloseOpen returns the break list with any trailing open break closed
// at the given instant. The input slice is not modified.
func CloseOpen(breaks []Break, at time.Time) []Break {
	out := make([]Break, len(breaks))
	copy(out, breaks)
	if len(out) > 0 && out[len(out)-1].Open() {
		end := at
		if end.Before(out[len(out)-1].Start) {
			end = out[len(out)-1].Start
		}
		out[len(out)-1].End = &end
	}
	return out
}

// TotalBreakMs sums closed break durations. Open breaks contribute
// nothing; close them first when finalizing.
func TotalBreakMs(breaks []Break) int64 {
	var total int64
	for _, b := range breaks {
		if b.Open() {
			continue
		}
		total += clampMs(b.End.Sub(b.Start))
	}
	return total
}

func clampMs(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
