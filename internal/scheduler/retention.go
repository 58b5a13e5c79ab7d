// Package scheduler runs periodic maintenance for the report store.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/patchpilot/patchpilot/internal/logging"
	"github.com/patchpilot/patchpilot/internal/metrics"
	"github.com/patchpilot/patchpilot/internal/storage"
)

// sweepTimeout bounds a single retention sweep.
const sweepTimeout = time.Minute

// Janitor deletes stored reports older than a configured age on a cron
// schedule.
type Janitor struct {
	cron   *cron.Cron
	store  storage.ReportStore
	maxAge time.Duration
	logger *logging.Logger
}

// NewJanitor creates a retention janitor. The schedule accepts standard
// cron expressions and descriptors like "@hourly".
func NewJanitor(store storage.ReportStore, schedule string, maxAge time.Duration) (*Janitor, error) {
	j := &Janitor{
		cron:   cron.New(),
		store:  store,
		maxAge: maxAge,
		logger: logging.WithComponent("scheduler"),
	}

	if _, err := j.cron.AddFunc(schedule, j.runSweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins scheduled sweeps.
func (j *Janitor) Start() {
	j.logger.Info("starting retention janitor", "max_age", j.maxAge)
	j.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("retention janitor stopped")
}

func (j *Janitor) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := j.Sweep(ctx); err != nil {
		j.logger.Error("retention sweep failed", "error", err)
	}
}

// Sweep deletes reports older than the retention age and returns how many
// were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.maxAge)

	removed, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		metrics.Counter("retention_sweep_total", metrics.Labels{"status": "error"})
		return 0, err
	}

	metrics.Counter("retention_sweep_total", metrics.Labels{"status": "success"})
	if removed > 0 {
		j.logger.Info("retention sweep removed reports",
			"removed", removed,
			"cutoff", cutoff)
	}
	return removed, nil
}
