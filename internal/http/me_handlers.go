package httpapi

import (
	"mime"
	"net/http"
	"os"

	"videoportal-backend-go/internal/services"

	"github.com/go-chi/chi/v5"
)

func (s *Server) UserDetail(w http.ResponseWriter, r *http.Request) {
	principal := CurrentUser(r)
	targetID := chi.URLParam(r, "userId")
	if !services.IsSelfOrSuperuser(principal, targetID) {
		writeServiceError(w, r, services.ErrPermissionDenied)
		return
	}
	user, err := services.GetUser(r.Context(), s.DB, targetID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildUserDTO(user))
}

func (s *Server) UserUpdate(w http.ResponseWriter, r *http.Request) {
	var req services.ProfileForm
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.Accounts.UpdateProfile(r.Context(), CurrentUser(r), chi.URLParam(r, "userId"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildUserDTO(user))
}

func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req services.PasswordChangeForm
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Accounts.ChangePassword(r.Context(), CurrentUser(r), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) EmailChange(w http.ResponseWriter, r *http.Request) {
	var req services.EmailChangeForm
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Accounts.RequestEmailChange(r.Context(), CurrentUser(r), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) EmailChangeComplete(w http.ResponseWriter, r *http.Request) {
	user, err := s.Accounts.ConfirmEmailChange(r.Context(), CurrentUser(r), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildUserDTO(user))
}

func (s *Server) MediaContent(w http.ResponseWriter, r *http.Request) {
	asset, err := services.GetMediaAsset(r.Context(), s.DB, chi.URLParam(r, "assetId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	path := services.AssetPath(s.Config.MediaStoragePath, asset)
	if _, err := os.Stat(path); err != nil {
		writeServiceError(w, r, services.ErrNotFound("Media not found"))
		return
	}
	if asset.Filename != nil {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": *asset.Filename}))
	}
	if asset.ContentType != "" {
		w.Header().Set("Content-Type", asset.ContentType)
	}
	http.ServeFile(w, r, path)
}
