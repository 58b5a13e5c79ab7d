package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patchpilot/patchpilot/internal/errors"
	"github.com/patchpilot/patchpilot/internal/metrics"
	"github.com/patchpilot/patchpilot/internal/report"
)

// MemoryStore is an in-memory report store. It is the default backend and
// loses everything on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*report.ScanReport
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]*report.ScanReport),
	}
}

// Save stores a report, rejecting duplicate scan IDs.
func (s *MemoryStore) Save(_ context.Context, rep *report.ScanReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[rep.ScanID]; exists {
		metrics.RecordStoreOperation("save", false)
		return errors.WrapStoreError(errors.CodeStoreConflict,
			"report already exists", "save", nil)
	}

	// Store a copy so later caller-side mutation cannot reach in.
	s.reports[rep.ScanID] = rep.Clone()
	metrics.RecordStoreOperation("save", true)
	metrics.SetReportsStored(len(s.reports))
	return nil
}

// Get retrieves a report by scan ID.
func (s *MemoryStore) Get(_ context.Context, scanID string) (*report.ScanReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.reports[scanID]
	if !ok {
		return nil, errors.NewNotFoundError("report", scanID)
	}
	// Hand out a copy so readers never observe later mutation.
	return rep.Clone(), nil
}

// List returns listings for all stored reports, newest first.
func (s *MemoryStore) List(_ context.Context) ([]ReportListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listings := make([]ReportListing, 0, len(s.reports))
	for _, rep := range s.reports {
		listings = append(listings, ReportListing{
			ScanID:        rep.ScanID,
			Timestamp:     rep.Timestamp,
			TotalServices: rep.Summary.TotalServices,
			HighRiskCount: rep.Summary.HighRiskCount,
		})
	}

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Timestamp.After(listings[j].Timestamp)
	})
	return listings, nil
}

// Delete removes a report by scan ID.
func (s *MemoryStore) Delete(_ context.Context, scanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[scanID]; !ok {
		metrics.RecordStoreOperation("delete", false)
		return errors.NewNotFoundError("report", scanID)
	}

	delete(s.reports, scanID)
	metrics.RecordStoreOperation("delete", true)
	metrics.SetReportsStored(len(s.reports))
	return nil
}

// DeleteOlderThan removes reports older than the cutoff.
func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rep := range s.reports {
		if rep.Timestamp.Before(cutoff) {
			delete(s.reports, id)
			removed++
		}
	}

	if removed > 0 {
		metrics.SetReportsStored(len(s.reports))
	}
	return removed, nil
}

// Count returns the number of stored reports.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
