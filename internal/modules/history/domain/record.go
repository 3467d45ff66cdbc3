package domain

import (
	"fmt"
	"time"

	timerdomain "tempo/internal/modules/timer/domain"
	apperrors "tempo/internal/platform/errors"
)

const (
	SessionCollection = "sessions"
	GoalCollection    = "goals"
)

// Record is a finalized session as the coordinator caches it. Pending
// marks an optimistic entry the remote store has not yet confirmed.
type Record struct {
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
	Pending      bool                `json:"-"`
}

// Validate gates every create before it reaches the network: durations
// must be non-negative and every break closed. An open break here is a
// caller bug, not user input.
func (r Record) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrInvalidInput)
	}
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", apperrors.ErrInvalidInput)
	}
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return fmt.Errorf("%w: record bounds", apperrors.ErrInvalidTimestamp)
	}
	if r.TotalFocusMs < 0 || r.TotalBreakMs < 0 {
		return fmt.Errorf("%w: negative duration", apperrors.ErrInvalidInput)
	}
	for i, b := range r.Breaks {
		if b.Open() {
			return fmt.Errorf("%w: break %d has no end", apperrors.ErrInvalidInput, i)
		}
	}
	return nil
}

// Equivalent compares the data fields two copies of the same record
// can disagree on; confirmation metadata is ignored.
func (r Record) Equivalent(other Record) bool {
	if r.Title != other.Title || r.Category != other.Category || r.Notes != other.Notes {
		return false
	}
	if !r.StartedAt.Equal(other.StartedAt) || !r.EndedAt.Equal(other.EndedAt) {
		return false
	}
	return r.TotalFocusMs == other.TotalFocusMs && r.TotalBreakMs == other.TotalBreakMs
}

type RecordPatch struct {
	Title *string
	Notes *string
}

// Goal is a weekly focus target, mutated through the same optimistic
// coordinator as session records.
type Goal struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	LocalRef     string    `json:"local_ref,omitempty"`
	Name         string    `json:"name"`
	Category     string    `json:"category,omitempty"`
	TargetWeekMs int64     `json:"target_week_ms"`
	CreatedAt    time.Time `json:"created_at"`
	Pending      bool      `json:"-"`
}

func (g Goal) Validate() error {
	if g.UserID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrInvalidInput)
	}
	if g.Name == "" {
		return fmt.Errorf("%w: goal name is required", apperrors.ErrInvalidInput)
	}
	if g.TargetWeekMs <= 0 {
		return fmt.Errorf("%w: weekly target must be positive", apperrors.ErrInvalidInput)
	}
	return nil
}

type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Mutation is the single tagged request type every create, update and
// delete flows through; there is exactly one code path to drift.
// Collection names the target for updates and deletes and defaults to
// session records.
type Mutation struct {
	Kind       MutationKind
	Collection string
	Record     *Record
	Goal       *Goal
	ID         string
	Patch      *RecordPatch
}

func (m Mutation) Validate() error {
	switch m.Kind {
	case MutationCreate:
		if m.Record == nil && m.Goal == nil {
			return fmt.Errorf("%w: create without payload", apperrors.ErrInvalidInput)
		}
	case MutationUpdate:
		if m.ID == "" || m.Patch == nil {
			return fmt.Errorf("%w: update needs id and patch", apperrors.ErrInvalidInput)
		}
	case MutationDelete:
		if m.ID == "" {
			return fmt.Errorf("%w: delete needs id", apperrors.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: mutation kind %q", apperrors.ErrInvalidInput, m.Kind)
	}
	return nil
}
