package memory

import (
	"context"
	"sort"
	"sync"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage"
)

// InferenceReportStore is an in-memory implementation of storage.InferenceReportStore.
type InferenceReportStore struct {
	mu   sync.RWMutex
	data map[string]*domain.InferenceReport // keyed by (snapshot_id, metric)
}

// NewInferenceReportStore creates a new in-memory inference report store.
func NewInferenceReportStore() *InferenceReportStore {
	return &InferenceReportStore{
		data: make(map[string]*domain.InferenceReport),
	}
}

// Insert adds a new report. Returns ErrDuplicateKey if (snapshot_id, metric) exists.
func (s *InferenceReportStore) Insert(_ context.Context, r *domain.InferenceReport) error {
	if r == nil || r.SnapshotID == "" || r.Metric == "" {
		return storage.ErrInvalidInput
	}

	key := reportKey(r.SnapshotID, r.Metric)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[key] = &copy
	return nil
}

// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate.
func (s *InferenceReportStore) InsertBulk(_ context.Context, reports []*domain.InferenceReport) error {
	if len(reports) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(reports))

	for _, r := range reports {
		if r == nil || r.SnapshotID == "" || r.Metric == "" {
			return storage.ErrInvalidInput
		}

		key := reportKey(r.SnapshotID, r.Metric)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range reports {
		copy := *r
		s.data[reportKey(r.SnapshotID, r.Metric)] = &copy
	}

	return nil
}

// GetBySnapshotID retrieves all reports for a snapshot, ordered by metric ASC.
func (s *InferenceReportStore) GetBySnapshotID(_ context.Context, snapshotID string) ([]*domain.InferenceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.InferenceReport
	for _, r := range s.data {
		if r.SnapshotID == snapshotID {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Metric < result[j].Metric
	})

	return result, nil
}

var _ storage.InferenceReportStore = (*InferenceReportStore)(nil)
