package dto

import (
	"time"

	timerdomain "tempo/internal/modules/timer/domain"
)

type CreateRecordInput struct {
	Title        string
	Category     string
	Notes        string
	Breaks       []timerdomain.Break
	StartedAt    time.Time
	EndedAt      time.Time
	TotalFocusMs int64
	TotalBreakMs int64
	LocalRef     string
}

type UpdateRecordInput struct {
	ID    string
	Title *string
	Notes *string
}

type RecordOutput struct {
	ID           string
	Title        string
	Category     string
	Notes        string
	StartedAt    time.Time
	EndedAt      time.Time
	TotalFocusMs int64
	TotalBreakMs int64
	Pending      bool
}

type CreateGoalInput struct {
	Name         string
	Category     string
	TargetWeekMs int64
}

type GoalOutput struct {
	ID           string
	Name         string
	Category     string
	TargetWeekMs int64
	CreatedAt    time.Time
	Pending      bool
}

type MutationOutput struct {
	ID     string
	Queued bool
}
