package domain

import (
	"fmt"
	"time"

	timerdomain "tempo/internal/modules/timer/domain"
	apperrors "tempo/internal/platform/errors"
)

const (
	// MirrorCollection holds at most one document per user: the
	// currently active session. Its presence is the "session active"
	// signal; there is no separate flag anywhere.
	MirrorCollection = "mirrors"
	// SessionCollection holds the immutable finalized records.
	SessionCollection = "sessions"
)

// ActiveSession is the mirror record shared by every device of one
// user. All mutations go through whole-record writes; Version is a
// monotonic counter bumped on every local mutation so devices can
// order writes that race within one propagation window.
type ActiveSession struct {
	UserID    string              `json:"user_id"`
	Title     string              `json:"title"`
	Category  string              `json:"category,omitempty"`
	Notes     string              `json:"notes,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	OnBreak   bool                `json:"on_break"`
	Breaks    []timerdomain.Break `json:"breaks,omitempty"`
	Version   int64               `json:"version"`
	UpdatedBy string              `json:"updated_by,omitempty"`
}

func (a ActiveSession) Active() bool {
	return !a.StartedAt.IsZero()
}

func (a ActiveSession) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrInvalidInput)
	}
	if a.StartedAt.IsZero() {
		return fmt.Errorf("%w: session start", apperrors.ErrInvalidTimestamp)
	}
	if err := timerdomain.ValidateBreaks(a.Breaks); err != nil {
		return err
	}
	open := len(a.Breaks) > 0 && a.Breaks[len(a.Breaks)-1].Open()
	if a.OnBreak != open {
		return fmt.Errorf("%w: on_break flag disagrees with break list", apperrors.ErrInvalidInput)
	}
	return nil
}

// SameData reports whether two mirrors agree on every user-visible
// field. Version and UpdatedBy are metadata: a write confirmation that
// changes nothing else must not count as a state change.
func (a ActiveSession) SameData(b ActiveSession) bool {
	if a.UserID != b.UserID || a.Title != b.Title || a.Category != b.Category || a.Notes != b.Notes {
		return false
	}
	if !a.StartedAt.Equal(b.StartedAt) || a.OnBreak != b.OnBreak {
		return false
	}
	if len(a.Breaks) != len(b.Breaks) {
		return false
	}
	for i := range a.Breaks {
		if !a.Breaks[i].Start.Equal(b.Breaks[i].Start) {
			return false
		}
		aOpen, bOpen := a.Breaks[i].Open(), b.Breaks[i].Open()
		if aOpen != bOpen {
			return false
		}
		if !aOpen && !a.Breaks[i].End.Equal(*b.Breaks[i].End) {
			return false
		}
	}
	return true
}

// ToggleBreak flips running<->on-break at the given instant: it opens
// a new break or closes the one in progress.
func (a *ActiveSession) ToggleBreak(now time.Time, deviceID string) error {
	if !a.Active() {
		return apperrors.ErrNoActiveSession
	}
	if a.OnBreak {
		a.Breaks = timerdomain.CloseOpen(a.Breaks, now)
		a.OnBreak = false
	} else {
		a.Breaks = append(append([]timerdomain.Break{}, a.Breaks...), timerdomain.Break{Start: now})
		a.OnBreak = true
	}
	a.touch(deviceID)
	return nil
}

// UpdateDetails merges title/notes edits without touching any timing
// field. Nil means "leave as is".
func (a *ActiveSession) UpdateDetails(title, notes *string, deviceID string) error {
	if !a.Active() {
		return apperrors.ErrNoActiveSession
	}
	if title != nil {
		a.Title = *title
	}
	if notes != nil {
		a.Notes = *notes
	}
	a.touch(deviceID)
	return nil
}

func (a *ActiveSession) touch(deviceID string) {
	a.Version++
	a.UpdatedBy = deviceID
}

// Session is the immutable record written once at session end. Totals
// are computed, never accumulated: TotalFocusMs is the wall-clock span
// minus TotalBreakMs by construction.
type Session struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	LocalRef     string              `json:"local_ref,omitempty"`
	Title        string              `json:"title"`
	Category     string              `json:"category,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	Breaks       []timerdomain.Break `json:"breaks,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	EndedAt      time.Time           `json:"ended_at"`
	TotalFocusMs int64               `json:"total_focus_ms"`
	TotalBreakMs int64               `json:"total_break_ms"`
}

func (s Session) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrInvalidInput)
	}
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() {
		return fmt.Errorf("%w: session bounds", apperrors.ErrInvalidTimestamp)
	}
	if s.EndedAt.Before(s.StartedAt) {
		return fmt.Errorf("%w: session ends before it starts", apperrors.ErrInvalidInput)
	}
	if s.TotalFocusMs < 0 || s.TotalBreakMs < 0 {
		return fmt.Errorf("%w: negative duration", apperrors.ErrInvalidInput)
	}
	for i, b := range s.Breaks {
		if b.Open() {
			return fmt.Errorf("%w: break %d is open in a finalized session", apperrors.ErrInvalidInput, i)
		}
	}
	return nil
}

// Finalize converts the mirror into a finalized record at endedAt. Any
// open break is closed with the end timestamp first, so a user who
// ends the session mid-break loses nothing.
func (a ActiveSession) Finalize(id string, endedAt time.Time) (Session, error) {
	if !a.Active() {
		return Session{}, apperrors.ErrNoActiveSession
	}
	if endedAt.Before(a.StartedAt) {
		endedAt = a.StartedAt
	}
	breaks := timerdomain.CloseOpen(a.Breaks, endedAt)

	snap, err := timerdomain.Compute(endedAt, a.StartedAt, breaks, false)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		ID:           id,
		UserID:       a.UserID,
		LocalRef:     id,
		Title:        a.Title,
		Category:     a.Category,
		Notes:        a.Notes,
		Breaks:       breaks,
		StartedAt:    a.StartedAt,
		EndedAt:      endedAt,
		TotalFocusMs: snap.SessionMs,
		TotalBreakMs: snap.BreakMs,
	}
	if err := session.Validate(); err != nil {
		return Session{}, err
	}
	return session, nil
}
