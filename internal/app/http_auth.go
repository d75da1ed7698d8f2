package app

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reginaldbaraza-code/TofuOS/internal/authpw"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
)

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"displayName": user.DisplayName,
	}
}

func sessionPayload(user store.User, token string, expiresAt time.Time) map[string]any {
	return map[string]any{
		"user":      userPayload(user),
		"token":     token,
		"expiresAt": expiresAt.UnixMilli(),
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, token, expiresAt, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		if status, _, _, _ := mapError(err); status == http.StatusUnauthorized || status == http.StatusBadRequest {
			message := "Invalid email or password."
			if s.service.demoLogin {
				message = "Invalid email or password. Try " + authpw.DemoEmail + " with a password of 6+ characters."
			}
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", message, nil)
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(user, token, expiresAt))
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, token, expiresAt, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(user, token, expiresAt))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := s.service.Logout(r.Context(), token); err != nil {
			log.Warn().Err(err).Msg("logout")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.CurrentUser(r.Context(), sessionFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}
