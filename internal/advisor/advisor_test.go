package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/config"
)

func testConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		BaseURL: baseURL,
		APIKey:  "sk-test",
		Model:   "gpt-4",
		Timeout: 5 * time.Second,
	}
}

func chatServer(t *testing.T, reply string, capture *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if capture != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestRecommend(t *testing.T) {
	var got chatRequest
	server := chatServer(t, "Upgrade to OpenSSH 9.6 immediately.", &got)
	defer server.Close()

	adv := New(testConfig(server.URL))
	out := adv.Recommend(context.Background(), "ssh", "8.9p1", []string{"CVE-2023-0001: flaw..."})

	assert.Equal(t, "Upgrade to OpenSSH 9.6 immediately.", out)
	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 0.0001)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, recommendationSystem, got.Messages[0].Content)
	assert.Contains(t, got.Messages[1].Content, "Service: ssh")
	assert.Contains(t, got.Messages[1].Content, "Version: 8.9p1")
	assert.Contains(t, got.Messages[1].Content, "CVE-2023-0001")
}

func TestRecommendWithoutCVEs(t *testing.T) {
	var got chatRequest
	server := chatServer(t, "ok", &got)
	defer server.Close()

	adv := New(testConfig(server.URL))
	adv.Recommend(context.Background(), "mysql", "8.0", nil)

	assert.Contains(t, got.Messages[1].Content, "No known CVEs found")
}

func TestRecommendUnconfigured(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.APIKey = ""
	adv := New(cfg)

	out := adv.Recommend(context.Background(), "ssh", "8.9p1", nil)
	assert.Equal(t, "OpenAI API key not configured. Please set OPENAI_API_KEY environment variable.", out)
}

func TestRecommendUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adv := New(testConfig(server.URL))
	out := adv.Recommend(context.Background(), "ssh", "8.9p1", nil)
	assert.Contains(t, out, "Error getting LLM recommendation:")
}

func TestGenerateScript(t *testing.T) {
	var got chatRequest
	server := chatServer(t, "#!/bin/bash\napt-get upgrade openssh-server", &got)
	defer server.Close()

	adv := New(testConfig(server.URL))
	out := adv.GenerateScript(context.Background(), "ssh", "8.9p1")

	assert.Contains(t, out, "#!/bin/bash")
	assert.Equal(t, 800, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 0.0001)
	assert.Equal(t, scriptSystem, got.Messages[0].Content)
	assert.Contains(t, got.Messages[1].Content, "patch/upgrade ssh version 8.9p1")
}

func TestGenerateScriptUnconfigured(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.APIKey = ""
	adv := New(cfg)

	out := adv.GenerateScript(context.Background(), "ssh", "8.9p1")
	assert.Equal(t, "# OpenAI API key not configured", out)
}

func TestGenerateScriptUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adv := New(testConfig(server.URL))
	out := adv.GenerateScript(context.Background(), "nginx", "1.18.0")
	assert.Contains(t, out, "# Error generating script:")
}

func TestRecommendNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	adv := New(testConfig(server.URL))
	out := adv.Recommend(context.Background(), "ssh", "8.9p1", nil)
	assert.Contains(t, out, "Error getting LLM recommendation:")
}
