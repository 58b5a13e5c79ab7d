package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/patchpilot/patchpilot/internal/advisor"
	"github.com/patchpilot/patchpilot/internal/enrich"
	"github.com/patchpilot/patchpilot/internal/nvd"
	"github.com/patchpilot/patchpilot/internal/report"
	"github.com/patchpilot/patchpilot/internal/storage"
)

var (
	scanOutputJSON bool
	scanSkipLLM    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <file.xml>",
	Short: "Enrich an nmap XML report locally",
	Long: `Parse an nmap XML report, look up CVEs for every open service,
classify severity, and print the enriched report. Results are not
persisted; use the API server for stored reports.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanOutputJSON, "json", false, "print the full report as JSON")
	scanCmd.Flags().BoolVar(&scanSkipLLM, "no-advice", false, "skip LLM recommendations")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read scan file: %w", err)
	}

	if scanSkipLLM {
		cfg.LLM.APIKey = ""
	}

	pipeline := enrich.New(enrich.Options{
		Store:     storage.NewMemoryStore(),
		Lookup:    nvd.NewClient(cfg.NVD),
		Advisor:   advisor.New(cfg.LLM),
		Workers:   cfg.Enrich.Workers,
		QueueSize: cfg.Enrich.QueueSize,
	})
	defer func() { _ = pipeline.Close() }()

	rep, err := pipeline.RunScan(context.Background(), args[0], content)
	if err != nil {
		return err
	}

	if scanOutputJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(rep)
	}

	printReport(rep)
	return nil
}

// printReport renders an enriched report as tables on stdout.
func printReport(rep *report.ScanReport) {
	fmt.Printf("Scan %s (%s)\n\n", rep.ScanID, rep.Timestamp.Format("2006-01-02 15:04:05"))

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("IP", "Port", "Service", "Version", "Severity", "CVEs")

	for i := range rep.Services {
		svc := &rep.Services[i]
		_ = table.Append([]string{
			svc.IP,
			svc.Port,
			svc.Service,
			svc.Version,
			string(svc.Severity),
			fmt.Sprintf("%d", len(svc.CVEInfo)),
		})
	}
	_ = table.Render()

	fmt.Printf("\nTotal services: %d  High: %d  Medium: %d  Low: %d\n",
		rep.Summary.TotalServices,
		rep.Summary.HighRiskCount,
		rep.Summary.MediumRiskCount,
		rep.Summary.LowRiskCount)
}
