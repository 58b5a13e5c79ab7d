// Package advisor produces remediation guidance for observed services via
// an OpenAI-compatible chat completions API.
//
// The advisor never returns an error. When the credential is missing or the
// upstream call fails, it returns an explanatory string so the report still
// completes with advisory slots filled.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/logging"
	"github.com/patchpilot/patchpilot/internal/metrics"
)

const completionsPath = "/v1/chat/completions"

const (
	recommendationSystem = "You are a cybersecurity expert specializing in vulnerability assessment and patch management."
	scriptSystem         = "You are a DevOps expert. Generate only shell script code."
)

// Advisor generates patch recommendations and remediation scripts.
type Advisor struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *logging.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// New creates an advisor from configuration.
func New(cfg config.LLMConfig) *Advisor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}

	return &Advisor{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.WithComponent("advisor"),
	}
}

// Configured reports whether the advisor has an API credential.
func (a *Advisor) Configured() bool {
	return a.apiKey != ""
}

// Recommend returns patch guidance for a service given its known CVEs.
func (a *Advisor) Recommend(ctx context.Context, service, version string, cveInfo []string) string {
	if !a.Configured() {
		return "OpenAI API key not configured. Please set OPENAI_API_KEY environment variable."
	}

	cveText := "No known CVEs found"
	if len(cveInfo) > 0 {
		cveText = strings.Join(cveInfo, "\n")
	}

	prompt := fmt.Sprintf(`
You are a cybersecurity expert. Analyze the following service and provide detailed patch recommendations:

Service: %s
Version: %s
Known CVEs: %s

Please provide:
1. Security assessment
2. Specific patch/upgrade steps
3. Alternative security measures
4. Risk level explanation

Format your response in a clear, actionable manner.
`, service, version, cveText)

	timer := metrics.NewTimer(metrics.MetricAdvisoryDuration, metrics.Labels{"operation": "recommend"})
	defer timer.Stop()
	metrics.Counter(metrics.MetricAdvisoriesTotal, metrics.Labels{"operation": "recommend"})

	content, err := a.complete(ctx, recommendationSystem, prompt, 1000, 0.3)
	if err != nil {
		metrics.IncrementAdvisoryFailures("recommend", "request")
		a.logger.Warn("recommendation generation failed",
			"service", service,
			"error", err)
		return fmt.Sprintf("Error getting LLM recommendation: %s", err)
	}
	return content
}

// GenerateScript returns a shell script that patches the given service.
func (a *Advisor) GenerateScript(ctx context.Context, service, version string) string {
	if !a.Configured() {
		return "# OpenAI API key not configured"
	}

	prompt := fmt.Sprintf(`
Generate a Linux shell script to patch/upgrade %s version %s.
The script should:
1. Check current version
2. Backup current configuration
3. Update/upgrade the service
4. Verify the update
5. Include error handling

Provide only the shell script code, no explanations.
`, service, version)

	timer := metrics.NewTimer(metrics.MetricAdvisoryDuration, metrics.Labels{"operation": "script"})
	defer timer.Stop()
	metrics.Counter(metrics.MetricAdvisoriesTotal, metrics.Labels{"operation": "script"})

	content, err := a.complete(ctx, scriptSystem, prompt, 800, 0.2)
	if err != nil {
		metrics.IncrementAdvisoryFailures("script", "request")
		a.logger.Warn("script generation failed",
			"service", service,
			"error", err)
		return fmt.Sprintf("# Error generating script: %s", err)
	}
	return content
}

func (a *Advisor) complete(ctx context.Context, system, prompt string, maxTokens int, temperature float64) (string, error) {
	payload := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling completion API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
