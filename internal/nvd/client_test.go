package nvd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/config"
)

func testConfig(baseURL string) config.NVDConfig {
	return config.NVDConfig{
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		MaxResults: 5,
	}
}

func TestLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, cvesPath, r.URL.Path)
		assert.Equal(t, "ssh 8.9p1", r.URL.Query().Get("keywordSearch"))
		assert.Equal(t, "5", r.URL.Query().Get("resultsPerPage"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"vulnerabilities": [
				{"cve": {"id": "CVE-2023-0001", "descriptions": [
					{"lang": "en", "value": "A short flaw."}
				]}},
				{"cve": {"id": "CVE-2023-0002", "descriptions": [
					{"lang": "es", "value": "descripcion"},
					{"lang": "en", "value": "Another flaw."}
				]}}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	cves := client.Lookup(context.Background(), "ssh", "8.9p1")

	require.Len(t, cves, 2)
	assert.Equal(t, "CVE-2023-0001: A short flaw....", cves[0])
	assert.Equal(t, "CVE-2023-0002: Another flaw....", cves[1])
}

func TestLookupTruncatesLongDescriptions(t *testing.T) {
	long := strings.Repeat("x", 250)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"vulnerabilities": [{"cve": {"id": "CVE-2023-9999", "descriptions": [{"lang": "en", "value": "` + long + `"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	cves := client.Lookup(context.Background(), "http", "")

	require.Len(t, cves, 1)
	assert.Equal(t, "CVE-2023-9999: "+strings.Repeat("x", 100)+"...", cves[0])
}

func TestSummarizeTruncatesOnRunes(t *testing.T) {
	// A multi-byte rune straddling the truncation point must survive whole.
	desc := strings.Repeat("a", 99) + "é suivi d'autres détails"
	got := summarize(cveItem{
		ID:           "CVE-2023-0042",
		Descriptions: []description{{Lang: "en", Value: desc}},
	})

	assert.Equal(t, "CVE-2023-0042: "+strings.Repeat("a", 99)+"é...", got)
	assert.True(t, utf8.ValidString(got))
}

func TestLookupSendsAPIKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apiKey")
		_, _ = w.Write([]byte(`{"vulnerabilities": []}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.APIKey = "test-key"
	client := NewClient(cfg)
	client.Lookup(context.Background(), "ssh", "9.0")

	assert.Equal(t, "test-key", gotKey)
}

func TestLookupFailsOpenOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	cves := client.Lookup(context.Background(), "ssh", "8.9p1")

	assert.NotNil(t, cves)
	assert.Empty(t, cves)
}

func TestLookupFailsOpenOnBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	cves := client.Lookup(context.Background(), "ssh", "8.9p1")

	assert.NotNil(t, cves)
	assert.Empty(t, cves)
}

func TestLookupFailsOpenOnUnreachableHost(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Timeout = 500 * time.Millisecond
	client := NewClient(cfg)

	cves := client.Lookup(context.Background(), "ssh", "8.9p1")
	assert.NotNil(t, cves)
	assert.Empty(t, cves)
}

func TestLookupRespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		_, _ = w.Write([]byte(`{"vulnerabilities": []}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client := NewClient(testConfig(server.URL))
	cves := client.Lookup(ctx, "ssh", "8.9p1")
	assert.Empty(t, cves)
}
