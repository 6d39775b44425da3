// Package checkpoint persists per-stage pipeline progress as JSON files so
// an interrupted run can resume where it left off.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/weizhiyuan62/zhilan/internal/ports"
)

// FileStore implements ports.CheckpointStore on the local filesystem.
// Each stage maps to one file, <dir>/<stage>.json, written atomically via
// a temp file and rename so a crash mid-write never leaves a truncated
// record. Records are pretty-printed so operators can inspect them.
type FileStore struct {
	dir string
}

var _ ports.CheckpointStore = (*FileStore)(nil)

// NewFileStore creates the checkpoint directory if needed and returns a
// store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the payload as the stage's record, replacing any previous
// record. The write is atomic: payload is marshaled, written to a temp
// file, synced, and renamed into place.
func (s *FileStore) Save(stage string, payload any) error {
	path, err := s.stagePath(stage)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint for stage %s: %w", stage, err)
	}

	tmp, err := os.CreateTemp(s.dir, stage+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint for stage %s: %w", stage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync checkpoint for stage %s: %w", stage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint for stage %s: %w", stage, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit checkpoint for stage %s: %w", stage, err)
	}
	return nil
}

// Load reads the stage's record into out. A missing file returns
// (false, nil); a present but unreadable or corrupt file returns an error
// so the caller can decide whether to start fresh.
func (s *FileStore) Load(stage string, out any) (bool, error) {
	path, err := s.stagePath(stage)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read checkpoint for stage %s: %w", stage, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("corrupt checkpoint for stage %s: %w", stage, err)
	}
	return true, nil
}

// Clear removes the stage's record. Clearing an absent stage succeeds.
func (s *FileStore) Clear(stage string) error {
	path, err := s.stagePath(stage)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear checkpoint for stage %s: %w", stage, err)
	}
	return nil
}

// stagePath validates the stage name and returns its file path. Names are
// restricted to keep the file layout flat and path traversal impossible.
func (s *FileStore) stagePath(stage string) (string, error) {
	if stage == "" {
		return "", fmt.Errorf("stage name cannot be empty")
	}
	if strings.ContainsAny(stage, `/\`) || strings.Contains(stage, "..") {
		return "", fmt.Errorf("invalid stage name %q", stage)
	}
	return filepath.Join(s.dir, stage+".json"), nil
}
