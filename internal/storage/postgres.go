package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/patchpilot/patchpilot/internal/errors"
	"github.com/patchpilot/patchpilot/internal/logging"
	"github.com/patchpilot/patchpilot/internal/metrics"
	"github.com/patchpilot/patchpilot/internal/report"
)

// uniqueViolation is the postgres error code for duplicate keys.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS scan_reports (
	scan_id    TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	report     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_reports_created_at ON scan_reports (created_at);
`

// PostgresStore persists reports in a postgres table, with the report body
// stored as JSONB.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logging.Logger
}

type reportRow struct {
	ScanID    string    `db:"scan_id"`
	CreatedAt time.Time `db:"created_at"`
	Report    []byte    `db:"report"`
}

// NewPostgresStore connects to postgres and ensures the reports table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed to connect to database", "connect", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &PostgresStore{
		db:     db,
		logger: logging.WithComponent("storage"),
	}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// newPostgresStoreWithDB wraps an existing connection, used by tests.
func newPostgresStoreWithDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logging.WithComponent("storage"),
	}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed to apply schema", "migrate", err)
	}
	return nil
}

// Save stores a report, rejecting duplicate scan IDs.
func (s *PostgresStore) Save(ctx context.Context, rep *report.ScanReport) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return errors.WrapStoreError(errors.CodeUnknown,
			"failed to encode report", "save", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scan_reports (scan_id, created_at, report) VALUES ($1, $2, $3)`,
		rep.ScanID, rep.Timestamp, body)
	if err != nil {
		metrics.RecordStoreOperation("save", false)
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return errors.WrapStoreError(errors.CodeStoreConflict,
				"report already exists", "save", err)
		}
		return errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed to save report", "save", err)
	}

	metrics.RecordStoreOperation("save", true)
	return nil
}

// Get retrieves a report by scan ID.
func (s *PostgresStore) Get(ctx context.Context, scanID string) (*report.ScanReport, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row,
		`SELECT scan_id, created_at, report FROM scan_reports WHERE scan_id = $1`,
		scanID)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("report", scanID)
	}
	if err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed to load report", "get", err)
	}

	var rep report.ScanReport
	if err := json.Unmarshal(row.Report, &rep); err != nil {
		return nil, errors.WrapStoreError(errors.CodeUnknown,
			"failed to decode stored report", "get", err)
	}
	return &rep, nil
}

// List returns listings for all stored reports, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]ReportListing, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT scan_id,
		       created_at,
		       COALESCE((report->'summary'->>'total_services')::int, 0) AS total_services,
		       COALESCE((report->'summary'->>'high_risk_count')::int, 0) AS high_risk_count
		FROM scan_reports
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed to list reports", "list", err)
	}
	defer rows.Close()

	listings := make([]ReportListing, 0)
	for rows.Next() {
		var l ReportListing
		if err := rows.Scan(&l.ScanID, &l.Timestamp, &l.TotalServices, &l.HighRiskCount); err != nil {
			return nil, errors.WrapStoreError(errors.CodeUnknown,
				"failed to scan listing row", "list", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed reading listing rows", "list", err)
	}
	return listings, nil
}

// Delete removes a report by scan ID.
func (s *PostgresStore) Delete(ctx context.Context, scanID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scan_reports WHERE scan_id = $1`, scanID)
	if err != nil {
		metrics.RecordStoreOperation("delete", false)
		return errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed to delete report", "delete", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapStoreError(errors.CodeUnknown,
			"failed to read delete result", "delete", err)
	}
	if affected == 0 {
		metrics.RecordStoreOperation("delete", false)
		return errors.NewNotFoundError("report", scanID)
	}

	metrics.RecordStoreOperation("delete", true)
	return nil
}

// DeleteOlderThan removes reports created before the cutoff.
func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scan_reports WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed to expire reports", "delete_older_than", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.WrapStoreError(errors.CodeUnknown,
			"failed to read expiry result", "delete_older_than", err)
	}
	return int(affected), nil
}

// Count returns the number of stored reports.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM scan_reports`); err != nil {
		return 0, errors.WrapStoreError(errors.CodeStoreUnavailable,
			"failed to count reports", "count", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Open creates a report store for the configured backend.
func Open(ctx context.Context, backend, dsn string) (ReportStore, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}

var (
	_ ReportStore = (*MemoryStore)(nil)
	_ ReportStore = (*PostgresStore)(nil)
)
