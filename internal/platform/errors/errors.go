package apperrors

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrNoActiveSession     = errors.New("no active session")
	ErrActiveSessionExists = errors.New("active session already exists")
	ErrNotAuthenticated    = errors.New("no authenticated identity")
	ErrOffline             = errors.New("remote store unreachable")
	ErrInvalidTimestamp    = errors.New("invalid or missing timestamp")
)
