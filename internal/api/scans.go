package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// UploadScanRequest is the payload for scan report uploads.
type UploadScanRequest struct {
	Filename string `json:"filename" validate:"required"`
	Content  string `json:"content" validate:"required"`
}

// uploadScanHandler accepts an nmap XML report, runs the enrichment
// pipeline, and returns the stored report.
func (s *Server) uploadScanHandler(w http.ResponseWriter, r *http.Request) {
	var req UploadScanRequest
	if err := s.ParseJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := s.validate.Struct(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("invalid upload request: %w", err))
		return
	}

	rep, err := s.pipeline.RunScan(r.Context(), req.Filename, []byte(req.Content))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.WriteJSON(w, r, http.StatusCreated, rep)
}

// listScansHandler lists stored report summaries.
func (s *Server) listScansHandler(w http.ResponseWriter, r *http.Request) {
	listings, err := s.pipeline.ListReports(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"reports": listings,
		"total":   len(listings),
	})
}

// getScanHandler retrieves one stored report.
func (s *Server) getScanHandler(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["id"]

	rep, err := s.pipeline.GetReport(r.Context(), scanID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.WriteJSON(w, r, http.StatusOK, rep)
}

// deleteScanHandler removes one stored report.
func (s *Server) deleteScanHandler(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["id"]

	if err := s.pipeline.DeleteReport(r.Context(), scanID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"scan_id": scanID,
		"deleted": true,
	})
}

// generateScriptHandler produces a patch script for one service in a
// stored report, selected via the service_index query parameter.
func (s *Server) generateScriptHandler(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["id"]

	serviceIndex, err := s.GetQueryParamInt(r, "service_index", 0)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("invalid service_index: %w", err))
		return
	}

	result, err := s.pipeline.GenerateScript(r.Context(), scanID, serviceIndex)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.WriteJSON(w, r, http.StatusOK, result)
}
