// Package report defines the scan report model and parses nmap XML output
// into it.
package report

import "time"

// Severity classifies how urgently an observed service needs attention.
type Severity string

const (
	SeverityHigh    Severity = "High"
	SeverityMedium  Severity = "Medium"
	SeverityLow     Severity = "Low"
	SeverityUnknown Severity = "Unknown"
)

// ServiceObservation is a single open service extracted from a scan report.
type ServiceObservation struct {
	IP      string `json:"ip"`
	Port    string `json:"port"`
	Service string `json:"service"`
	Version string `json:"version"`
	Product string `json:"product,omitempty"`
}

// EnrichedService is a service observation augmented with vulnerability
// context and remediation advice.
type EnrichedService struct {
	ServiceObservation
	Recommendation string   `json:"recommendation"`
	Severity       Severity `json:"severity"`
	CVEInfo        []string `json:"cve_info"`
}

// Summary aggregates severity counts across a report's services.
type Summary struct {
	TotalServices     int              `json:"total_services"`
	SeverityBreakdown map[Severity]int `json:"severity_breakdown"`
	HighRiskCount     int              `json:"high_risk_count"`
	MediumRiskCount   int              `json:"medium_risk_count"`
	LowRiskCount      int              `json:"low_risk_count"`
}

// ScanReport is the fully enriched result of processing one scan upload.
type ScanReport struct {
	ScanID    string            `json:"scan_id"`
	Timestamp time.Time         `json:"timestamp"`
	Services  []EnrichedService `json:"services"`
	Summary   Summary           `json:"summary"`
}

// Clone returns a deep copy of the report. Stores hand out clones so
// callers never share mutable state with persisted data.
func (r *ScanReport) Clone() *ScanReport {
	if r == nil {
		return nil
	}

	out := *r

	out.Services = make([]EnrichedService, len(r.Services))
	for i, svc := range r.Services {
		out.Services[i] = svc
		out.Services[i].CVEInfo = make([]string, len(svc.CVEInfo))
		copy(out.Services[i].CVEInfo, svc.CVEInfo)
	}

	if r.Summary.SeverityBreakdown != nil {
		out.Summary.SeverityBreakdown = make(map[Severity]int, len(r.Summary.SeverityBreakdown))
		for k, v := range r.Summary.SeverityBreakdown {
			out.Summary.SeverityBreakdown[k] = v
		}
	}

	return &out
}

// Summarize computes severity aggregates for a set of enriched services.
func Summarize(services []EnrichedService) Summary {
	summary := Summary{
		TotalServices:     len(services),
		SeverityBreakdown: make(map[Severity]int),
	}

	for _, svc := range services {
		summary.SeverityBreakdown[svc.Severity]++
		switch svc.Severity {
		case SeverityHigh:
			summary.HighRiskCount++
		case SeverityMedium:
			summary.MediumRiskCount++
		case SeverityLow:
			summary.LowRiskCount++
		}
	}

	return summary
}
