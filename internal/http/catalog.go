package httpapi

import (
	"net/http"
	"time"

	"videoportal-backend-go/internal/services"

	"github.com/go-chi/chi/v5"
)

func (s *Server) ListSubjects(w http.ResponseWriter, r *http.Request) {
	rows, err := services.ListSubjects(r.Context(), s.DB)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items := make([]SubjectDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, buildSubjectDTO(row))
	}
	WriteJSON(w, http.StatusOK, items)
}

func (s *Server) GetSubject(w http.ResponseWriter, r *http.Request) {
	subject, err := services.GetSubject(r.Context(), s.DB, chi.URLParam(r, "subjectId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSubjectDTO(subject))
}

func (s *Server) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req services.SubjectForm
	if !decodeJSON(w, r, &req) {
		return
	}
	subject, err := services.CreateSubject(r.Context(), s.DB, CurrentUser(r), req, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildSubjectDTO(subject))
}

func (s *Server) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	var req services.SubjectForm
	if !decodeJSON(w, r, &req) {
		return
	}
	subject, err := services.UpdateSubject(r.Context(), s.DB, CurrentUser(r), chi.URLParam(r, "subjectId"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSubjectDTO(subject))
}

func (s *Server) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	if err := services.DeleteSubject(r.Context(), s.DB, CurrentUser(r), chi.URLParam(r, "subjectId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListLecturers(w http.ResponseWriter, r *http.Request) {
	rows, err := services.ListLecturers(r.Context(), s.DB)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items := make([]LecturerDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, buildLecturerDTO(row))
	}
	WriteJSON(w, http.StatusOK, items)
}

func (s *Server) GetLecturer(w http.ResponseWriter, r *http.Request) {
	lecturer, err := services.GetLecturer(r.Context(), s.DB, chi.URLParam(r, "lecturerId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildLecturerDTO(lecturer))
}

func (s *Server) CreateLecturer(w http.ResponseWriter, r *http.Request) {
	var req services.LecturerForm
	if !decodeJSON(w, r, &req) {
		return
	}
	lecturer, err := services.CreateLecturer(r.Context(), s.DB, CurrentUser(r), req, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildLecturerDTO(lecturer))
}

func (s *Server) UpdateLecturer(w http.ResponseWriter, r *http.Request) {
	var req services.LecturerForm
	if !decodeJSON(w, r, &req) {
		return
	}
	lecturer, err := services.UpdateLecturer(r.Context(), s.DB, CurrentUser(r), chi.URLParam(r, "lecturerId"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildLecturerDTO(lecturer))
}

func (s *Server) DeleteLecturer(w http.ResponseWriter, r *http.Request) {
	if err := services.DeleteLecturer(r.Context(), s.DB, CurrentUser(r), chi.URLParam(r, "lecturerId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
