package app

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reginaldbaraza-code/TofuOS/internal/ai"
	"github.com/reginaldbaraza-code/TofuOS/internal/export"
)

func (s *HTTPServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SourceIDs []string `json:"sourceIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	insights, err := s.service.Analyze(r.Context(), sessionFrom(r).UserID, body.SourceIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message   string       `json:"message"`
		SourceIDs []string     `json:"sourceIds"`
		History   []ai.Message `json:"history"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	content, err := s.service.Chat(r.Context(), sessionFrom(r).UserID, body.Message, body.SourceIDs, body.History)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": content})
}

func (s *HTTPServer) handleStudioGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocumentType string   `json:"documentType"`
		SourceIDs    []string `json:"sourceIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	content, version, err := s.service.GenerateStudioDocument(r.Context(), sessionFrom(r).UserID, body.DocumentType, body.SourceIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": content, "version": version})
}

func (s *HTTPServer) handleStudioHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	versions, err := s.service.StudioHistory(r.Context(), sessionFrom(r).UserID, chi.URLParam(r, "docType"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *HTTPServer) handleStudioVersion(w http.ResponseWriter, r *http.Request) {
	docType := r.URL.Query().Get("type")
	if docType == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "type is required", nil)
		return
	}
	content, version, err := s.service.StudioVersion(r.Context(), sessionFrom(r).UserID, docType, chi.URLParam(r, "hash"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": content, "version": version})
}

func (s *HTTPServer) handleStudioExport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Format  string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.ExportDocument(r.Context(), sessionFrom(r).UserID, body.Title, body.Content, export.Format(body.Format))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
