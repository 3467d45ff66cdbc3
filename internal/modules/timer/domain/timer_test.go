package domain_test

import (
	"errors"
	"testing"
	"time"

	"tempo/internal/modules/timer/domain"
	apperrors "tempo/internal/platform/errors"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func closed(start, end string) domain.Break {
	e := ts(end)
	return domain.Break{Start: ts(start), End: &e}
}

func TestComputeIsPureFunctionOfInputs(t *testing.T) {
	t.Parallel()
	start := ts("2024-01-01T09:00:00Z")
	now := ts("2024-01-01T09:30:00Z")
	breaks := []domain.Break{closed("2024-01-01T09:10:00Z", "2024-01-01T09:15:00Z")}

	first, err := domain.Compute(now, start, breaks, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	second, err := domain.Compute(now, start, breaks, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if first != second {
		t.Fatalf("recompute diverged: %+v vs %+v", first, second)
	}
	if first.SessionMs != 25*60*1000 {
		t.Fatalf("session ms = %d, want %d", first.SessionMs, 25*60*1000)
	}
	if first.BreakMs != 5*60*1000 {
		t.Fatalf("break ms = %d, want %d", first.BreakMs, 5*60*1000)
	}
}

func TestComputeRehydratesFromTimestampsAlone(t *testing.T) {
	t.Parallel()
	t0 := ts("2024-06-01T08:00:00Z")
	breaks := []domain.Break{closed("2024-06-01T08:00:10Z", "2024-06-01T08:00:20Z")}

	snap, err := domain.Compute(t0.Add(30*time.Second), t0, breaks, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snap.SessionMs != 20000 {
		t.Fatalf("session ms = %d, want 20000", snap.SessionMs)
	}
	if snap.BreakMs != 10000 {
		t.Fatalf("break ms = %d, want 10000", snap.BreakMs)
	}
}

func TestComputeCountsOpenBreakUpToNow(t *testing.T) {
	t.Parallel()
	t0 := ts("2024-06-01T08:00:00Z")
	breaks := []domain.Break{{Start: t0.Add(10 * time.Second)}}

	snap, err := domain.Compute(t0.Add(25*time.Second), t0, breaks, true)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snap.BreakMs != 15000 {
		t.Fatalf("break ms = %d, want 15000", snap.BreakMs)
	}
	if snap.SessionMs != 10000 {
		t.Fatalf("session ms = %d, want 10000", snap.SessionMs)
	}
}

func TestComputeClampsClockSkewToZero(t *testing.T) {
	t.Parallel()
	start := ts("2024-06-01T08:00:00Z")
	now := start.Add(-time.Minute)

	snap, err := domain.Compute(now, start, nil, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snap.SessionMs != 0 || snap.BreakMs != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}

func TestComputeRejectsZeroStart(t *testing.T) {
	t.Parallel()
	_, err := domain.Compute(time.Now(), time.Time{}, nil, false)
	if !errors.Is(err, apperrors.ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestValidateBreaksRejectsInteriorOpenBreak(t *testing.T) {
	t.Parallel()
	breaks := []domain.Break{
		{Start: ts("2024-06-01T08:00:00Z")},
		closed("2024-06-01T08:05:00Z", "2024-06-01T08:06:00Z"),
	}
	if err := domain.ValidateBreaks(breaks); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	ok := []domain.Break{
		closed("2024-06-01T08:00:00Z", "2024-06-01T08:01:00Z"),
		{Start: ts("2024-06-01T08:05:00Z")},
	}
	if err := domain.ValidateBreaks(ok); err != nil {
		t.Fatalf("valid list rejected: %v", err)
	}
}

func TestCloseOpenClosesOnlyTrailingBreak(t *testing.T) {
	t.Parallel()
	at := ts("2024-06-01T09:00:00Z")
	breaks := []domain.Break{
		closed("2024-06-01T08:00:00Z", "2024-06-01T08:05:00Z"),
		{Start: ts("2024-06-01T08:30:00Z")},
	}

	out := domain.CloseOpen(breaks, at)
	if breaks[1].End != nil {
		t.Fatal("input slice was mutated")
	}
	if out[1].End == nil || !out[1].End.Equal(at) {
		t.Fatalf("trailing break not closed at %v: %+v", at, out[1])
	}
	if !out[0].End.Equal(*breaks[0].End) {
		t.Fatalf("closed break changed: %+v", out[0])
	}
}

func TestCloseOpenNeverProducesNegativeBreak(t *testing.T) {
	t.Parallel()
	start := ts("2024-06-01T09:00:00Z")
	out := domain.CloseOpen([]domain.Break{{Start: start}}, start.Add(-time.Minute))
	if out[0].End == nil || !out[0].End.Equal(start) {
		t.Fatalf("expected break clamped to its start, got %+v", out[0])
	}
}
