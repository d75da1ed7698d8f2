package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/reginaldbaraza-code/TofuOS/internal/ai"
	"github.com/reginaldbaraza-code/TofuOS/internal/auth"
	"github.com/reginaldbaraza-code/TofuOS/internal/authpw"
	"github.com/reginaldbaraza-code/TofuOS/internal/blob"
	"github.com/reginaldbaraza-code/TofuOS/internal/export"
	"github.com/reginaldbaraza-code/TofuOS/internal/jira"
	"github.com/reginaldbaraza-code/TofuOS/internal/metrics"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
	"github.com/reginaldbaraza-code/TofuOS/internal/studio"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/signup", s.handleSignUp)
	r.Post("/api/auth/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/api/auth/session", s.handleSession)

		r.Get("/api/sources", s.handleListSources)
		r.Patch("/api/sources", s.handleReplaceSources)
		r.Post("/api/sources/reviews", s.handleAddReviews)
		r.Post("/api/sources/documents", s.handleAddDocuments)
		r.Get("/api/sources/search", s.handleSearchSources)
		r.Delete("/api/sources/{sourceID}", s.handleDeleteSource)
		r.Get("/api/uploads/{fileID}", s.handleUpload)

		r.Post("/api/analyze", s.handleAnalyze)
		r.Post("/api/chat", s.handleChat)

		r.Post("/api/studio/generate", s.handleStudioGenerate)
		r.Get("/api/studio/documents/{docType}/history", s.handleStudioHistory)
		r.Get("/api/studio/versions/{hash}", s.handleStudioVersion)
		r.Post("/api/studio/export", s.handleStudioExport)

		r.Get("/api/jira/config", s.handleGetJiraConfig)
		r.Post("/api/jira/config", s.handleSaveJiraConfig)
		r.Post("/api/jira/create-issue", s.handleCreateJiraIssue)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type sessionKey struct{}

// requireAuth resolves the bearer token and stores the session on the context.
func (s *HTTPServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		log.Error().Err(err).Msg("session lookup failed")
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func sessionFrom(r *http.Request) Session {
	session, _ := r.Context().Value(sessionKey{}).(Session)
	return session
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		metrics.ObserveHTTP(r.Method, route, writer.status, elapsed)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, If-Match")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Sources-Version, Content-Disposition")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeServiceError maps err and logs anything that ends up as a 5xx.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var jiraErr *jira.APIError
	if errors.As(err, &jiraErr) {
		status := jiraErr.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		return status, "JIRA_ERROR", jiraErr.Message, nil
	}
	var aiErr *ai.Error
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password.", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", strings.TrimPrefix(err.Error(), authpw.ErrInvalidInput.Error()+": "), nil
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, "CONFLICT", "Sources changed since they were read", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "CONFLICT", "Duplicate source id", nil
	case errors.Is(err, store.ErrUnknownKind):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blob.ErrNotFound), errors.Is(err, studio.ErrVersionNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, blob.ErrInvalidKey), errors.Is(err, studio.ErrInvalidName):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Invalid identifier", nil
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusServiceUnavailable, "AI_NOT_CONFIGURED", "AI is not configured. Set AI_API_KEY in the server environment.", nil
	case errors.Is(err, ai.ErrUnknownDocumentType):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Unknown document type: " + strings.TrimPrefix(err.Error(), ai.ErrUnknownDocumentType.Error()+": "), nil
	case errors.Is(err, ai.ErrMalformedResponse):
		return http.StatusBadGateway, "AI_MALFORMED_RESPONSE", "The AI backend returned a malformed response", nil
	case ai.IsRateLimited(err):
		return http.StatusTooManyRequests, "AI_RATE_LIMITED", ai.QuotaExceededMessage, nil
	case errors.As(err, &aiErr):
		return http.StatusBadGateway, "AI_ERROR", aiErr.Message, nil
	case errors.Is(err, jira.ErrNotConfigured):
		return http.StatusBadRequest, "JIRA_NOT_CONFIGURED", "Jira is not configured. Set your Jira credentials first.", nil
	case errors.Is(err, export.ErrContentUnavailable):
		return http.StatusBadRequest, "VALIDATION_ERROR", "content is required", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "VALIDATION_ERROR", "format must be pdf or docx", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
