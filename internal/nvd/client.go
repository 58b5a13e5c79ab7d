// Package nvd queries the NVD CVE API for vulnerabilities matching an
// observed service.
//
// Lookups fail open: any transport, decoding, or server failure yields an
// empty result set rather than an error, so one catalog outage never blocks
// report enrichment.
package nvd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/logging"
	"github.com/patchpilot/patchpilot/internal/metrics"
)

const cvesPath = "/rest/json/cves/2.0"

// summaryLimit caps how much of a CVE description is carried into the
// report.
const summaryLimit = 100

// Client looks up known vulnerabilities for service/version pairs.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
	logger     *logging.Logger
}

// response mirrors the slice of the NVD API response the client reads.
type response struct {
	Vulnerabilities []vulnerability `json:"vulnerabilities"`
}

type vulnerability struct {
	CVE cveItem `json:"cve"`
}

type cveItem struct {
	ID           string        `json:"id"`
	Descriptions []description `json:"descriptions"`
}

type description struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// NewClient creates a vulnerability catalog client from configuration.
func NewClient(cfg config.NVDConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.WithComponent("nvd"),
	}
}

// Lookup returns CVE summaries matching the given service and version.
//
// The returned slice is never nil. Failures are logged and counted but
// surface only as an empty result.
func (c *Client) Lookup(ctx context.Context, service, version string) []string {
	keyword := strings.TrimSpace(service + " " + version)
	timer := metrics.NewTimer(metrics.MetricLookupDuration, nil)
	defer timer.Stop()

	metrics.Counter(metrics.MetricLookupsTotal, nil)

	cves, err := c.search(ctx, keyword)
	if err != nil {
		metrics.IncrementLookupFailures("request")
		c.logger.Warn("CVE lookup failed",
			"service", service,
			"version", version,
			"error", err)
		return []string{}
	}

	metrics.Histogram(metrics.MetricCVEsFound, float64(len(cves)), nil)
	return cves
}

func (c *Client) search(ctx context.Context, keyword string) ([]string, error) {
	query := url.Values{}
	query.Set("keywordSearch", keyword)
	query.Set("resultsPerPage", strconv.Itoa(c.maxResults))

	endpoint := c.baseURL + cvesPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	cves := make([]string, 0, len(body.Vulnerabilities))
	for _, vuln := range body.Vulnerabilities {
		cves = append(cves, summarize(vuln.CVE))
	}
	return cves, nil
}

// summarize formats one CVE as "<id>: <truncated description>...".
func summarize(cve cveItem) string {
	desc := ""
	for _, d := range cve.Descriptions {
		if d.Lang == "en" {
			desc = d.Value
			break
		}
	}
	if desc == "" && len(cve.Descriptions) > 0 {
		desc = cve.Descriptions[0].Value
	}

	// Truncate on runes so a multi-byte character at the boundary is not
	// split into invalid UTF-8.
	if runes := []rune(desc); len(runes) > summaryLimit {
		desc = string(runes[:summaryLimit])
	}
	return fmt.Sprintf("%s: %s...", cve.ID, desc)
}
