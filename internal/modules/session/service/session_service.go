package service

import (
	"fmt"

	"tempo/internal/modules/session/domain"
	"tempo/internal/platform/clock"
	apperrors "tempo/internal/platform/errors"
	"tempo/internal/platform/id"
)

// SessionService owns the lifecycle transitions. It is deliberately
// free of storage: the usecase decides where a transition's result
// goes, the service only decides whether it is legal.
type SessionService struct {
	clk      clock.Clock
	idGen    id.Generator
	userID   string
	deviceID string
}

func NewSessionService(clk clock.Clock, idGen id.Generator, userID, deviceID string) *SessionService {
	return &SessionService{clk: clk, idGen: idGen, userID: userID, deviceID: deviceID}
}

func (s *SessionService) UserID() string {
	return s.userID
}

// Start builds a fresh mirror. Starting requires an authenticated
// identity; current must be the (possibly empty) known mirror so a
// second start cannot create a duplicate.
func (s *SessionService) Start(current domain.ActiveSession, title, category, notes string) (domain.ActiveSession, error) {
	if s.userID == "" {
		return domain.ActiveSession{}, apperrors.ErrNotAuthenticated
	}
	if current.Active() {
		return domain.ActiveSession{}, apperrors.ErrActiveSessionExists
	}
	if title == "" {
		return domain.ActiveSession{}, fmt.Errorf("%w: title is required", apperrors.ErrInvalidInput)
	}
	active := domain.ActiveSession{
		UserID:    s.userID,
		Title:     title,
		Category:  category,
		Notes:     notes,
		StartedAt: s.clk.Now(),
		Version:   1,
		UpdatedBy: s.deviceID,
	}
	if err := active.Validate(); err != nil {
		return domain.ActiveSession{}, err
	}
	return active, nil
}

func (s *SessionService) Toggle(current domain.ActiveSession) (domain.ActiveSession, error) {
	next := current
	if err := next.ToggleBreak(s.clk.Now(), s.deviceID); err != nil {
		return domain.ActiveSession{}, err
	}
	return next, nil
}

func (s *SessionService) UpdateDetails(current domain.ActiveSession, title, notes *string) (domain.ActiveSession, error) {
	next := current
	if err := next.UpdateDetails(title, notes, s.deviceID); err != nil {
		return domain.ActiveSession{}, err
	}
	return next, nil
}

// Finalize ends the session now, minting a local identifier that the
// optimistic create will later correlate with the remote one.
func (s *SessionService) Finalize(current domain.ActiveSession) (domain.Session, error) {
	return current.Finalize(id.NewLocal(s.idGen), s.clk.Now())
}
