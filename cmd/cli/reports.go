package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/patchpilot/patchpilot/internal/enrich"
	"github.com/patchpilot/patchpilot/internal/report"
	"github.com/patchpilot/patchpilot/internal/storage"
)

const clientTimeout = 30 * time.Second

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage stored scan reports",
	Long:  `List, inspect, and delete reports stored by a running patchpilot server.`,
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports",
	RunE:  runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Show one stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsShow,
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <scan-id>",
	Short: "Delete a stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsDelete,
}

var reportsScriptCmd = &cobra.Command{
	Use:   "script <scan-id> <service-index>",
	Short: "Generate a patch script for one service of a report",
	Args:  cobra.ExactArgs(2),
	RunE:  runReportsScript,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
	reportsCmd.AddCommand(reportsScriptCmd)

	reportsCmd.PersistentFlags().String("server", "", "API base URL (default from config)")
}

// apiBaseURL resolves the server address for report commands.
func apiBaseURL(cmd *cobra.Command) (string, error) {
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		return server, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return "http://" + cfg.GetAPIAddress(), nil
}

// apiRequest performs one API call and decodes the JSON response into out.
func apiRequest(cmd *cobra.Command, method, path string, out interface{}) error {
	baseURL, err := apiBaseURL(cmd)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(method, baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	client := &http.Client{Timeout: clientTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runReportsList(cmd *cobra.Command, _ []string) error {
	var resp struct {
		Reports []storage.ReportListing `json:"reports"`
		Total   int                     `json:"total"`
	}
	if err := apiRequest(cmd, http.MethodGet, "/api/v1/scans", &resp); err != nil {
		return err
	}

	if resp.Total == 0 {
		fmt.Println("No stored reports.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Scan ID", "Timestamp", "Services", "High Risk")

	for _, listing := range resp.Reports {
		_ = table.Append([]string{
			listing.ScanID,
			listing.Timestamp.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", listing.TotalServices),
			fmt.Sprintf("%d", listing.HighRiskCount),
		})
	}
	_ = table.Render()
	return nil
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	var rep report.ScanReport
	if err := apiRequest(cmd, http.MethodGet, "/api/v1/scans/"+args[0], &rep); err != nil {
		return err
	}

	printReport(&rep)
	return nil
}

func runReportsDelete(cmd *cobra.Command, args []string) error {
	if err := apiRequest(cmd, http.MethodDelete, "/api/v1/scans/"+args[0], nil); err != nil {
		return err
	}

	fmt.Printf("Report %s deleted.\n", args[0])
	return nil
}

func runReportsScript(cmd *cobra.Command, args []string) error {
	var result enrich.ScriptResult
	path := fmt.Sprintf("/api/v1/scans/%s/script?service_index=%s", args[0], args[1])
	if err := apiRequest(cmd, http.MethodPost, path, &result); err != nil {
		return err
	}

	fmt.Printf("# Patch script for %s %s (%s:%s)\n\n",
		result.Service.Service,
		result.Service.Version,
		result.Service.IP,
		result.Service.Port)
	fmt.Println(result.Script)
	return nil
}
