package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage"
)

// UnitStore is an in-memory implementation of storage.UnitStore.
type UnitStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExperimentUnit // keyed by composite key
}

// NewUnitStore creates a new in-memory experiment unit store.
func NewUnitStore() *UnitStore {
	return &UnitStore{
		data: make(map[string]*domain.ExperimentUnit),
	}
}

// unitKey generates a unique key for a unit.
func unitKey(experimentID, unitID string) string {
	return fmt.Sprintf("%s|%s", experimentID, unitID)
}

// Insert adds a new unit. Returns ErrDuplicateKey if (experiment_id, unit_id) exists.
func (s *UnitStore) Insert(_ context.Context, u *domain.ExperimentUnit) error {
	if u == nil || u.UnitID == "" || u.ExperimentID == "" {
		return storage.ErrInvalidInput
	}

	key := unitKey(u.ExperimentID, u.UnitID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *u
	s.data[key] = &copy
	return nil
}

// InsertBulk adds multiple units atomically. Fails entire batch on any duplicate.
func (s *UnitStore) InsertBulk(_ context.Context, units []*domain.ExperimentUnit) error {
	if len(units) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(units))

	// First pass: check for duplicates (existing + intra-batch)
	for _, u := range units {
		if u == nil || u.UnitID == "" || u.ExperimentID == "" {
			return storage.ErrInvalidInput
		}

		key := unitKey(u.ExperimentID, u.UnitID)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, u := range units {
		copy := *u
		s.data[unitKey(u.ExperimentID, u.UnitID)] = &copy
	}

	return nil
}

// GetByExperimentID retrieves all units for an experiment, ordered by AssignedAt ASC, UnitID ASC.
func (s *UnitStore) GetByExperimentID(_ context.Context, experimentID string) ([]*domain.ExperimentUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExperimentUnit
	for _, u := range s.data {
		if u.ExperimentID == experimentID {
			copy := *u
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].AssignedAt != result[j].AssignedAt {
			return result[i].AssignedAt < result[j].AssignedAt
		}
		return result[i].UnitID < result[j].UnitID
	})

	return result, nil
}

// CountByExperimentID returns the number of units stored for an experiment.
func (s *UnitStore) CountByExperimentID(_ context.Context, experimentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, u := range s.data {
		if u.ExperimentID == experimentID {
			count++
		}
	}
	return count, nil
}

var _ storage.UnitStore = (*UnitStore)(nil)
