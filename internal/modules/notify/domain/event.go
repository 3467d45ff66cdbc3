package domain

import "time"

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Event is a user-facing, non-blocking notification. Terminal failures
// produce one; per-retry noise must not.
type Event struct {
	Level Level     `json:"level"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}
