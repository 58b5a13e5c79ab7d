// Package enrich orchestrates the scan enrichment pipeline: parse a scan
// report, look up vulnerabilities, classify severity, generate advisories,
// and persist the enriched result.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patchpilot/patchpilot/internal/errors"
	"github.com/patchpilot/patchpilot/internal/logging"
	"github.com/patchpilot/patchpilot/internal/metrics"
	"github.com/patchpilot/patchpilot/internal/report"
	"github.com/patchpilot/patchpilot/internal/storage"
	"github.com/patchpilot/patchpilot/internal/workers"
)

// VulnLookup finds known vulnerabilities for a service.
type VulnLookup interface {
	Lookup(ctx context.Context, service, version string) []string
}

// AdviceGenerator produces remediation guidance and patch scripts.
type AdviceGenerator interface {
	Recommend(ctx context.Context, service, version string, cveInfo []string) string
	GenerateScript(ctx context.Context, service, version string) string
	Configured() bool
}

// ScriptResult is the outcome of generating a patch script for one service
// in a stored report.
type ScriptResult struct {
	ScanID  string                 `json:"scan_id"`
	Service report.EnrichedService `json:"service"`
	Script  string                 `json:"script"`
}

// Pipeline wires the parser, vulnerability lookup, advisor, and store into
// the scan processing flow.
type Pipeline struct {
	store   storage.ReportStore
	lookup  VulnLookup
	advisor AdviceGenerator
	pool    *workers.Pool
	logger  *logging.Logger
	prom    *metrics.PrometheusMetrics
}

// Options configures pipeline construction.
type Options struct {
	Store      storage.ReportStore
	Lookup     VulnLookup
	Advisor    AdviceGenerator
	Workers    int
	QueueSize  int
	Prometheus *metrics.PrometheusMetrics
}

// New creates a pipeline and starts its worker pool.
func New(opts Options) *Pipeline {
	poolCfg := workers.DefaultConfig()
	if opts.Workers > 0 {
		poolCfg.Size = opts.Workers
	}
	if opts.QueueSize > 0 {
		poolCfg.QueueSize = opts.QueueSize
	}

	pool := workers.New(poolCfg)
	pool.Start()

	return &Pipeline{
		store:   opts.Store,
		lookup:  opts.Lookup,
		advisor: opts.Advisor,
		pool:    pool,
		logger:  logging.WithComponent("enrich"),
		prom:    opts.Prometheus,
	}
}

// RunScan parses scan content, enriches every observed service, and stores
// the resulting report.
func (p *Pipeline) RunScan(ctx context.Context, filename string, content []byte) (*report.ScanReport, error) {
	start := time.Now()
	scanID := uuid.New().String()
	logger := p.logger.With("scan_id", scanID, "filename", filename)

	observations, err := report.Parse(content)
	if err != nil {
		metrics.IncrementScansTotal("parse_error")
		if p.prom != nil {
			p.prom.ObserveScan("parse_error", time.Since(start))
		}
		logger.Error("failed to parse scan report", "error", err)
		return nil, err
	}

	logger.Info("scan report parsed", "services", len(observations))

	services := p.enrichAll(ctx, scanID, observations)

	rep := &report.ScanReport{
		ScanID:    scanID,
		Timestamp: time.Now().UTC(),
		Services:  services,
		Summary:   report.Summarize(services),
	}

	if err := p.store.Save(ctx, rep); err != nil {
		metrics.IncrementScansTotal("store_error")
		if p.prom != nil {
			p.prom.ObserveScan("store_error", time.Since(start))
		}
		logger.Error("failed to store report", "error", err)
		return nil, err
	}

	p.recordStoredCount(ctx)
	metrics.IncrementScansTotal("success")
	metrics.RecordScanDuration("success", time.Since(start))
	if p.prom != nil {
		p.prom.ObserveScan("success", time.Since(start))
	}

	logger.Info("scan report stored",
		"total_services", rep.Summary.TotalServices,
		"high_risk", rep.Summary.HighRiskCount,
		"duration", time.Since(start))
	return rep, nil
}

// enrichResult carries one enriched service back from a worker, tagged
// with its position in the parser's service order.
type enrichResult struct {
	idx int
	svc report.EnrichedService
}

// enrichAll fans service enrichment out over the worker pool, preserving
// the parser's service order in the result.
//
// Workers hand their output back over a channel and only this goroutine
// assembles the slice, so a job still in flight when the caller gives up
// can never touch the assembled report.
func (p *Pipeline) enrichAll(ctx context.Context, scanID string, observations []report.ServiceObservation) []report.EnrichedService {
	services := make([]report.EnrichedService, len(observations))
	// Buffered to the job count so abandoned jobs never block sending.
	results := make(chan enrichResult, len(observations))

	for i, obs := range observations {
		idx, observation := i, obs
		job := workers.NewEnrichJob(
			fmt.Sprintf("%s/%d", scanID, idx),
			observation,
			func(jobCtx context.Context, svc report.ServiceObservation) error {
				results <- enrichResult{idx: idx, svc: p.enrichOne(jobCtx, svc)}
				return nil
			})

		if err := p.pool.Submit(job); err != nil {
			// Queue full or pool stopped: enrich on the caller instead
			// of failing the scan.
			p.logger.Warn("inline enrichment fallback", "error", err)
			results <- enrichResult{idx: idx, svc: p.enrichOne(ctx, observation)}
		}
	}

	received := make([]bool, len(observations))
	for range observations {
		select {
		case res := <-results:
			services[res.idx] = res.svc
			received[res.idx] = true
		case <-ctx.Done():
			// Fill whatever has not completed with unenriched entries so
			// the report stays coherent.
			for i := range services {
				if !received[i] {
					services[i] = p.fallbackService(observations[i])
				}
			}
			return services
		}
	}
	return services
}

// enrichOne runs the full enrichment for a single service observation.
func (p *Pipeline) enrichOne(ctx context.Context, obs report.ServiceObservation) report.EnrichedService {
	cveInfo := p.lookup.Lookup(ctx, obs.Service, obs.Version)
	if cveInfo == nil {
		cveInfo = []string{}
	}

	severity := report.ClassifySeverity(obs.Service, len(cveInfo))
	recommendation := p.advisor.Recommend(ctx, obs.Service, obs.Version, cveInfo)

	metrics.Counter(metrics.MetricServicesEnriched, metrics.Labels{
		"severity": string(severity),
	})
	if p.prom != nil {
		p.prom.ObserveServiceEnriched(string(severity))
	}

	return report.EnrichedService{
		ServiceObservation: obs,
		Recommendation:     recommendation,
		Severity:           severity,
		CVEInfo:            cveInfo,
	}
}

// fallbackService builds an unenriched entry for a cancelled scan.
func (p *Pipeline) fallbackService(obs report.ServiceObservation) report.EnrichedService {
	return report.EnrichedService{
		ServiceObservation: obs,
		Recommendation:     "Enrichment cancelled before completion.",
		Severity:           report.ClassifySeverity(obs.Service, 0),
		CVEInfo:            []string{},
	}
}

// GenerateScript produces a patch script for one service of a stored
// report, addressed by its position in the report's service list.
func (p *Pipeline) GenerateScript(ctx context.Context, scanID string, serviceIndex int) (*ScriptResult, error) {
	rep, err := p.store.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}

	if serviceIndex < 0 || serviceIndex >= len(rep.Services) {
		return nil, errors.NewInvalidArgumentError("service_index",
			fmt.Sprintf("index %d out of range for report with %d services",
				serviceIndex, len(rep.Services)))
	}

	svc := rep.Services[serviceIndex]
	script := p.advisor.GenerateScript(ctx, svc.Service, svc.Version)

	return &ScriptResult{
		ScanID:  scanID,
		Service: svc,
		Script:  script,
	}, nil
}

// GetReport retrieves a stored report by scan ID.
func (p *Pipeline) GetReport(ctx context.Context, scanID string) (*report.ScanReport, error) {
	return p.store.Get(ctx, scanID)
}

// ListReports lists stored report summaries, newest first.
func (p *Pipeline) ListReports(ctx context.Context) ([]storage.ReportListing, error) {
	return p.store.List(ctx)
}

// DeleteReport removes a stored report by scan ID.
func (p *Pipeline) DeleteReport(ctx context.Context, scanID string) error {
	if err := p.store.Delete(ctx, scanID); err != nil {
		return err
	}
	p.recordStoredCount(ctx)
	return nil
}

// AdvisorConfigured reports whether advisory generation has a credential.
func (p *Pipeline) AdvisorConfigured() bool {
	return p.advisor.Configured()
}

func (p *Pipeline) recordStoredCount(ctx context.Context) {
	count, err := p.store.Count(ctx)
	if err != nil {
		return
	}
	metrics.SetReportsStored(count)
	if p.prom != nil {
		p.prom.SetStoredReports(count)
	}
}

// Close shuts down the pipeline's worker pool.
func (p *Pipeline) Close() error {
	return p.pool.Shutdown()
}
