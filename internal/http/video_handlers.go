package httpapi

import (
	"mime/multipart"
	"net/http"

	"videoportal-backend-go/internal/models"
	"videoportal-backend-go/internal/services"

	"github.com/go-chi/chi/v5"
)

const maxUploadMemory = 32 << 20

type openedFiles []multipart.File

func (f openedFiles) Close() {
	for _, file := range f {
		_ = file.Close()
	}
}

// formFile opens the named multipart file. A missing part yields nil.
func formFile(r *http.Request, name string, opened *openedFiles) (*services.UploadFile, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[name]) == 0 {
		return nil, nil
	}
	header := r.MultipartForm.File[name][0]
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	*opened = append(*opened, file)
	return &services.UploadFile{Filename: header.Filename, Body: file}, nil
}

func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid multipart payload", Code: services.CodeBadRequest})
		return false
	}
	return true
}

func (s *Server) VideoList(w http.ResponseWriter, r *http.Request) {
	items, err := services.ListOwnVideos(r.Context(), s.DB, CurrentUser(r).ID, r.URL.Query().Get("keyword"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, VideoListResponse{Items: buildVideoDTOs(items)})
}

func (s *Server) AllVideoList(w http.ResponseWriter, r *http.Request) {
	items, err := services.ListAllVideos(r.Context(), s.DB, r.URL.Query().Get("master_keyword"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, VideoListResponse{Items: buildVideoDTOs(items)})
}

func (s *Server) SubjectVideos(w http.ResponseWriter, r *http.Request) {
	subject, items, err := services.ListBySubject(r.Context(), s.DB, chi.URLParam(r, "subjectId"), CurrentUser(r).ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, SubjectVideosResponse{Subject: buildSubjectDTO(subject), Items: buildVideoDTOs(items)})
}

func (s *Server) PlayVideo(w http.ResponseWriter, r *http.Request) {
	video, err := services.PlayVideo(r.Context(), s.DB, chi.URLParam(r, "videoId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	comments, err := services.VideoComments(r.Context(), s.DB, video.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]CommentDTO, 0, len(comments))
	for _, c := range comments {
		out = append(out, buildCommentDTO(c.Comment, LecturerDTO{ID: c.LecturerID, Name: c.LecturerName}, c.OwnerEmail))
	}
	WriteJSON(w, http.StatusOK, PlayResponse{Video: buildVideoDTO(video), Comments: out})
}

func (s *Server) UploadVideo(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()
	var opened openedFiles
	defer opened.Close()
	upload, err := formFile(r, "upload", &opened)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	thumbnail, err := formFile(r, "thumbnail", &opened)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	form := services.VideoForm{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		SubjectID:   r.FormValue("subject"),
	}
	video, err := s.Content.UploadVideo(r.Context(), CurrentUser(r), form, upload, thumbnail)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildVideoDTO(video))
}

func (s *Server) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := s.Content.DeleteVideo(r.Context(), CurrentUser(r), chi.URLParam(r, "videoId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) CreateComment(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()
	var opened openedFiles
	defer opened.Close()
	images := make([]services.UploadFile, 3)
	for i, name := range []string{"image1", "image2", "image3"} {
		image, err := formFile(r, name, &opened)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if image != nil {
			images[i] = *image
		}
	}
	video, err := formFile(r, "video", &opened)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	form := services.CommentForm{
		Title:      r.FormValue("title"),
		Text:       r.FormValue("text"),
		LecturerID: r.FormValue("lecturer"),
	}
	comment, err := s.Content.CreateComment(r.Context(), CurrentUser(r), chi.URLParam(r, "videoId"), form, images, video)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	lecturer, err := services.GetLecturer(r.Context(), s.DB, comment.LecturerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	author := CurrentUser(r)
	WriteJSON(w, http.StatusCreated, buildCommentDTO(comment, buildLecturerDTO(lecturer), ownerEmail(author)))
}

func (s *Server) DeleteComment(w http.ResponseWriter, r *http.Request) {
	videoID, err := s.Content.DeleteComment(r.Context(), CurrentUser(r), chi.URLParam(r, "commentId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"videoId": videoID})
}

func ownerEmail(user models.User) *string {
	if user.Email == "" {
		return nil
	}
	email := user.Email
	return &email
}
