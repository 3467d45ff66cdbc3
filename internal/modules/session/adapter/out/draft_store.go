package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sessionout "tempo/internal/modules/session/port/out"
)

// FileDraftStore keeps the in-progress notes text in a plain file so an
// unfinished note survives a process restart.
type FileDraftStore struct {
	path string
}

func NewFileDraftStore(dataDir string) sessionout.DraftStore {
	return &FileDraftStore{path: filepath.Join(dataDir, "draft-notes.txt")}
}

func (s *FileDraftStore) SaveDraft(_ context.Context, notes string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create draft dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(notes), 0o644); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

func (s *FileDraftStore) LoadDraft(_ context.Context) (string, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read draft: %w", err)
	}
	return string(payload), nil
}

func (s *FileDraftStore) ClearDraft(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}
