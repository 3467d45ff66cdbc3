package dto

import (
	"time"

	timerdomain "tempo/internal/modules/timer/domain"
)

type StartInput struct {
	Title    string
	Category string
	Notes    string
}

type DetailsInput struct {
	Title *string
	Notes *string
}

type ActiveOutput struct {
	Active    bool
	Title     string
	Category  string
	Notes     string
	StartedAt time.Time
	OnBreak   bool
	Breaks    []timerdomain.Break
	Version   int64
}

type EndOutput struct {
	Ended        bool
	SessionID    string
	Title        string
	StartedAt    time.Time
	EndedAt      time.Time
	TotalFocusMs int64
	TotalBreakMs int64
	// Queued is set when the finalize write could not reach the remote
	// store and sits in the offline queue instead.
	Queued bool
}

type EventKind string

const (
	EventUpdated EventKind = "updated"
	EventCleared EventKind = "cleared"
)

// Event is pushed to subscribers whenever the mirror changes, whether
// the change originated locally or on another device.
type Event struct {
	Kind   EventKind
	Active ActiveOutput
}

type SyncStatus struct {
	Online  bool
	Pending int
}
