package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reginaldbaraza-code/TofuOS/internal/store"
)

const multipartMemory = 32 << 20

func setSourcesVersion(w http.ResponseWriter, version int64) {
	w.Header().Set("X-Sources-Version", strconv.FormatInt(version, 10))
}

// parseIfMatch reads an optional If-Match version. Quotes and a weak prefix
// are tolerated.
func parseIfMatch(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return nil, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return nil, validationError("If-Match must be a source list version")
	}
	return &version, nil
}

func (s *HTTPServer) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, version, err := s.service.ListSources(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	setSourcesVersion(w, version)
	writeJSON(w, http.StatusOK, sources)
}

// decodeSourceList accepts either a bare array or {"sources": [...]}.
func decodeSourceList(raw json.RawMessage) ([]store.Source, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Sources json.RawMessage `json:"sources"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, validationError("sources must be an array")
		}
		trimmed = bytes.TrimSpace(wrapped.Sources)
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, validationError("sources must be an array")
	}
	var sources []store.Source
	if err := json.Unmarshal(trimmed, &sources); err != nil {
		if errors.Is(err, store.ErrUnknownKind) {
			return nil, validationError(err.Error())
		}
		return nil, validationError("sources must be an array of sources")
	}
	return sources, nil
}

func (s *HTTPServer) handleReplaceSources(w http.ResponseWriter, r *http.Request) {
	expected, err := parseIfMatch(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sources, err := decodeSourceList(raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	saved, version, err := s.service.ReplaceSources(r.Context(), sessionFrom(r).UserID, sources, expected)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	setSourcesVersion(w, version)
	writeJSON(w, http.StatusOK, saved)
}

func (s *HTTPServer) handleAddReviews(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Store      string `json:"store"`
		AppPageURL string `json:"appPageUrl"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	source, version, err := s.service.AddReviewsSource(r.Context(), sessionFrom(r).UserID, body.Store, body.AppPageURL)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	setSourcesVersion(w, version)
	writeJSON(w, http.StatusCreated, source)
}

func (s *HTTPServer) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadFiles*MaxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "FILE_TOO_LARGE", "Upload exceeds the allowed size.", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart/form-data with field \"files\"", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	// Reject on headers alone before reading any part.
	preflight := make([]UploadedFile, 0, len(headers))
	for _, header := range headers {
		preflight = append(preflight, UploadedFile{Name: header.Filename})
		if header.Size > MaxUploadBytes {
			writeError(w, http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the 20 MB limit.", map[string]any{"file": header.Filename})
			return
		}
	}
	if err := validateUploads(preflight); err != nil {
		writeServiceError(w, r, err)
		return
	}

	files := make([]UploadedFile, 0, len(headers))
	for _, header := range headers {
		part, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read uploaded file", nil)
			return
		}
		data, err := io.ReadAll(io.LimitReader(part, MaxUploadBytes+1))
		_ = part.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read uploaded file", nil)
			return
		}
		files = append(files, UploadedFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	added, version, err := s.service.AddDocuments(r.Context(), sessionFrom(r).UserID, files)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	setSourcesVersion(w, version)
	writeJSON(w, http.StatusCreated, added)
}

func (s *HTTPServer) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	version, err := s.service.DeleteSource(r.Context(), sessionFrom(r).UserID, chi.URLParam(r, "sourceID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	setSourcesVersion(w, version)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSearchSources(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	response, err := s.service.SearchSources(r.Context(), sessionFrom(r).UserID, r.URL.Query().Get("q"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	reader, err := s.service.OpenUpload(r.Context(), sessionFrom(r).UserID, fileID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension(filepath.Ext(fileID))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}
