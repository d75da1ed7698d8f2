package app

import "net/http"

func (s *HTTPServer) handleGetJiraConfig(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetJiraConfig(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSaveJiraConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Domain   string `json:"domain"`
		Email    string `json:"email"`
		APIToken string `json:"apiToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.SaveJiraConfig(r.Context(), sessionFrom(r).UserID, body.Domain, body.Email, body.APIToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleCreateJiraIssue(w http.ResponseWriter, r *http.Request) {
	var body CreateIssueInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	issue, err := s.service.CreateJiraIssue(r.Context(), sessionFrom(r).UserID, body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}
