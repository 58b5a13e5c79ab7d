// Package storage persists enriched scan reports.
package storage

import (
	"context"
	"time"

	"github.com/patchpilot/patchpilot/internal/report"
)

// ReportListing is the lightweight listing view of a stored report.
type ReportListing struct {
	ScanID        string    `json:"scan_id"`
	Timestamp     time.Time `json:"timestamp"`
	TotalServices int       `json:"total_services"`
	HighRiskCount int       `json:"high_risk_count"`
}

// ReportStore stores and retrieves enriched scan reports.
//
// Implementations must be safe for concurrent use.
type ReportStore interface {
	// Save stores a report. Saving an existing scan ID is a conflict.
	Save(ctx context.Context, rep *report.ScanReport) error

	// Get retrieves a report by scan ID.
	Get(ctx context.Context, scanID string) (*report.ScanReport, error)

	// List returns listings for all stored reports, newest first.
	List(ctx context.Context) ([]ReportListing, error)

	// Delete removes a report by scan ID.
	Delete(ctx context.Context, scanID string) error

	// DeleteOlderThan removes reports whose timestamp precedes the cutoff
	// and returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the number of stored reports.
	Count(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
