package testutils

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/weizhiyuan62/zhilan/internal/ports"
)

// MemoryStore is an in-memory ports.CheckpointStore. Records round-trip
// through JSON so tests observe the same serialization behavior as the
// file-backed store. FailSaves makes Save fail for fault-injection tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	saves   int

	// FailSaves makes every Save return an error when true.
	FailSaves bool
}

var _ ports.CheckpointStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Save implements ports.CheckpointStore.
func (s *MemoryStore) Save(stage string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaves {
		return fmt.Errorf("save failed for stage %s", stage)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.records[stage] = data
	s.saves++
	return nil
}

// Load implements ports.CheckpointStore.
func (s *MemoryStore) Load(stage string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.records[stage]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Clear implements ports.CheckpointStore.
func (s *MemoryStore) Clear(stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, stage)
	return nil
}

// Saves returns how many successful Save calls occurred.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Has reports whether a record exists for the stage.
func (s *MemoryStore) Has(stage string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[stage]
	return ok
}
