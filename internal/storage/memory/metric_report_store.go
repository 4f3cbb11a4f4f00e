package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage"
)

// MetricReportStore is an in-memory implementation of storage.MetricReportStore.
type MetricReportStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MetricReport // keyed by composite key
}

// NewMetricReportStore creates a new in-memory metric report store.
func NewMetricReportStore() *MetricReportStore {
	return &MetricReportStore{
		data: make(map[string]*domain.MetricReport),
	}
}

// reportKey generates a unique key for a report.
func reportKey(snapshotID, metric string) string {
	return fmt.Sprintf("%s|%s", snapshotID, metric)
}

// Insert adds a new report. Returns ErrDuplicateKey if (snapshot_id, metric) exists.
func (s *MetricReportStore) Insert(_ context.Context, r *domain.MetricReport) error {
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
func (s *MetricReportStore) InsertBulk(_ context.Context, reports []*domain.MetricReport) error {
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
func (s *MetricReportStore) GetBySnapshotID(_ context.Context, snapshotID string) ([]*domain.MetricReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MetricReport
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

var _ storage.MetricReportStore = (*MetricReportStore)(nil)
