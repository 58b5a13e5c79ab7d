package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/enrich"
	"github.com/patchpilot/patchpilot/internal/report"
	"github.com/patchpilot/patchpilot/internal/storage"
)

const sampleScan = `<?xml version="1.0"?>
<nmaprun>
  <host>
    <address addr="192.168.1.10" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="22">
        <state state="open"/>
        <service name="ssh" version="8.9p1"/>
      </port>
      <port protocol="tcp" portid="80">
        <state state="open"/>
        <service name="http" version="1.18.0"/>
      </port>
    </ports>
  </host>
</nmaprun>`

type fakeLookup struct{}

func (fakeLookup) Lookup(_ context.Context, service, _ string) []string {
	if service == "ssh" {
		return []string{"CVE-2023-0001: ssh flaw..."}
	}
	return []string{}
}

type fakeAdvisor struct{}

func (fakeAdvisor) Recommend(_ context.Context, service, _ string, _ []string) string {
	return "patch " + service
}

func (fakeAdvisor) GenerateScript(_ context.Context, service, _ string) string {
	return "#!/bin/bash\n# upgrade " + service
}

func (fakeAdvisor) Configured() bool { return true }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	pipeline := enrich.New(enrich.Options{
		Store:   storage.NewMemoryStore(),
		Lookup:  fakeLookup{},
		Advisor: fakeAdvisor{},
		Workers: 2,
	})
	t.Cleanup(func() { _ = pipeline.Close() })

	server, err := New(config.Default(), pipeline, nil)
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	server.GetRouter().ServeHTTP(rec, req)
	return rec
}

func uploadSample(t *testing.T, server *Server) report.ScanReport {
	t.Helper()

	rec := doJSON(t, server, http.MethodPost, "/api/v1/scans", UploadScanRequest{
		Filename: "scan.xml",
		Content:  sampleScan,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rep report.ScanReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	return rep
}

func TestUploadScan(t *testing.T) {
	server := newTestServer(t)

	rep := uploadSample(t, server)
	assert.NotEmpty(t, rep.ScanID)
	require.Len(t, rep.Services, 2)
	assert.Equal(t, "ssh", rep.Services[0].Service)
	assert.Equal(t, report.SeverityHigh, rep.Services[0].Severity)
	assert.Equal(t, []string{"CVE-2023-0001: ssh flaw..."}, rep.Services[0].CVEInfo)
	assert.Equal(t, "patch ssh", rep.Services[0].Recommendation)
	assert.Equal(t, 2, rep.Summary.TotalServices)
	assert.Equal(t, 1, rep.Summary.HighRiskCount)
}

func TestUploadScanValidation(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/scans", UploadScanRequest{
		Filename: "scan.xml",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadScanMalformedXML(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/scans", UploadScanRequest{
		Filename: "scan.xml",
		Content:  "<nmaprun><host>",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "PARSE", errResp.Code)
}

func TestUploadScanInvalidJSON(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.GetRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadScanUnsupportedContentType(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", bytes.NewBufferString(sampleScan))
	req.Header.Set("Content-Type", "application/xml")
	rec := httptest.NewRecorder()
	server.GetRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestGetScan(t *testing.T) {
	server := newTestServer(t)
	rep := uploadSample(t, server)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/scans/"+rep.ScanID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got report.ScanReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, rep.ScanID, got.ScanID)
	assert.Len(t, got.Services, 2)
}

func TestGetScanNotFound(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/scans/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListScans(t *testing.T) {
	server := newTestServer(t)
	rep := uploadSample(t, server)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/scans", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Reports []storage.ReportListing `json:"reports"`
		Total   int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Reports, 1)
	assert.Equal(t, rep.ScanID, resp.Reports[0].ScanID)
}

func TestDeleteScan(t *testing.T) {
	server := newTestServer(t)
	rep := uploadSample(t, server)

	rec := doJSON(t, server, http.MethodDelete, "/api/v1/scans/"+rep.ScanID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/scans/"+rep.ScanID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, server, http.MethodDelete, "/api/v1/scans/"+rep.ScanID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateScript(t *testing.T) {
	server := newTestServer(t)
	rep := uploadSample(t, server)

	rec := doJSON(t, server, http.MethodPost,
		"/api/v1/scans/"+rep.ScanID+"/script?service_index=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result enrich.ScriptResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, rep.ScanID, result.ScanID)
	assert.Equal(t, "http", result.Service.Service)
	assert.Contains(t, result.Script, "upgrade http")
}

func TestGenerateScriptBadIndex(t *testing.T) {
	server := newTestServer(t)
	rep := uploadSample(t, server)

	rec := doJSON(t, server, http.MethodPost,
		"/api/v1/scans/"+rep.ScanID+"/script?service_index=42", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost,
		"/api/v1/scans/"+rep.ScanID+"/script?service_index=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateScriptUnknownScan(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/scans/missing/script", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLiveness(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/liveness", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp["status"])
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["store"])
	assert.Equal(t, "ok", resp.Checks["advisor"])
}

func TestVersion(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, Version, resp["version"])
	assert.Equal(t, "patchpilot", resp["service"])
}

func TestIndex(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "patchpilot API")
}

func TestMetricsSnapshot(t *testing.T) {
	server := newTestServer(t)
	uploadSample(t, server)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "metrics")
}
