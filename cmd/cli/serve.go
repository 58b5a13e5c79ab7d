package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patchpilot/patchpilot/internal/advisor"
	"github.com/patchpilot/patchpilot/internal/api"
	"github.com/patchpilot/patchpilot/internal/enrich"
	"github.com/patchpilot/patchpilot/internal/logging"
	"github.com/patchpilot/patchpilot/internal/metrics"
	"github.com/patchpilot/patchpilot/internal/nvd"
	"github.com/patchpilot/patchpilot/internal/scheduler"
	"github.com/patchpilot/patchpilot/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enrichment API server",
	Long: `Start the patchpilot HTTP API. The server accepts nmap XML report
uploads, enriches them with CVE lookups and patch advisories, and serves
stored reports until stopped.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen address (overrides config)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.API.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.API.Port = port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Store.Backend, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	defer func() { _ = store.Close() }()

	prom := metrics.NewPrometheusMetrics()

	pipeline := enrich.New(enrich.Options{
		Store:      store,
		Lookup:     nvd.NewClient(cfg.NVD),
		Advisor:    advisor.New(cfg.LLM),
		Workers:    cfg.Enrich.Workers,
		QueueSize:  cfg.Enrich.QueueSize,
		Prometheus: prom,
	})
	defer func() { _ = pipeline.Close() }()

	if !cfg.AdvisoryConfigured() {
		logging.Warn("advisory generation disabled: no LLM API key configured")
	}

	if cfg.Retention.Enabled {
		janitor, err := scheduler.NewJanitor(store, cfg.Retention.Schedule, cfg.Retention.MaxAge)
		if err != nil {
			return fmt.Errorf("failed to create retention janitor: %w", err)
		}
		janitor.Start()
		defer janitor.Stop()
	}

	server, err := api.New(cfg, pipeline, prom)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	logging.Info("patchpilot started",
		"address", cfg.GetAPIAddress(),
		"store", cfg.Store.Backend,
		"workers", cfg.Enrich.Workers)

	return server.Start(ctx)
}
