package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/report"
)

func TestCommandRegistration(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}

	assert.True(t, names["serve"], "serve command should be registered")
	assert.True(t, names["scan"], "scan command should be registered")
	assert.True(t, names["reports"], "reports command should be registered")
	assert.True(t, names["version"], "version command should be registered")
}

func TestReportsSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range reportsCmd.Commands() {
		names[cmd.Name()] = true
	}

	assert.True(t, names["list"])
	assert.True(t, names["show"])
	assert.True(t, names["delete"])
	assert.True(t, names["script"])
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc1234", "2026-01-01")
	assert.Contains(t, rootCmd.Version, "1.2.3")
	assert.Contains(t, rootCmd.Version, "abc1234")
}

func TestScanCommandRequiresFile(t *testing.T) {
	err := scanCmd.Args(scanCmd, []string{})
	require.Error(t, err)

	err = scanCmd.Args(scanCmd, []string{"scan.xml"})
	assert.NoError(t, err)
}

func TestPrintReport(t *testing.T) {
	services := []report.EnrichedService{
		{
			ServiceObservation: report.ServiceObservation{
				IP: "10.0.0.1", Port: "22", Service: "ssh", Version: "8.9p1",
			},
			Severity: report.SeverityHigh,
			CVEInfo:  []string{"CVE-2023-0001: flaw..."},
		},
	}
	rep := &report.ScanReport{
		ScanID:    "test-scan",
		Timestamp: time.Now(),
		Services:  services,
		Summary:   report.Summarize(services),
	}

	// Must not panic with a populated report.
	printReport(rep)
}
