package httpapi

import (
	"net/http"

	"videoportal-backend-go/internal/services"

	"github.com/go-chi/chi/v5"
)

type TokenResponse struct {
	AccessToken string   `json:"accessToken"`
	ExpiresAt   int64    `json:"expiresAt"`
	User        *UserDTO `json:"user"`
}

type ResendRequest struct {
	Email string `json:"email"`
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterForm
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.Accounts.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildUserDTO(user))
}

func (s *Server) ResendActivation(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Accounts.ResendActivation(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) CompleteActivation(w http.ResponseWriter, r *http.Request) {
	user, err := s.Accounts.ConfirmActivation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildUserDTO(user))
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginForm
	if !decodeJSON(w, r, &req) {
		return
	}
	access, exp, user, err := s.Accounts.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, TokenResponse{AccessToken: access, ExpiresAt: exp, User: buildUserDTO(user)})
}

// Logout only acknowledges; access tokens expire on their own.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req services.PasswordResetForm
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Accounts.RequestPasswordReset(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req services.SetPasswordForm
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Accounts.ConfirmPasswordReset(r.Context(), chi.URLParam(r, "token"), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
