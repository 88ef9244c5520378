package httpapi

import (
	"time"

	"videoportal-backend-go/internal/models"
	"videoportal-backend-go/internal/services"
)

type SubjectDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LecturerDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type VideoDTO struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ThumbnailURL *string    `json:"thumbnailUrl"`
	UploadURL    string     `json:"uploadUrl"`
	Subject      SubjectDTO `json:"subject"`
	OwnerID      string     `json:"ownerId"`
	OwnerEmail   string     `json:"ownerEmail"`
	ViewCount    int64      `json:"viewCount"`
	CommentCount int64      `json:"commentCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type CommentDTO struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Text       string      `json:"text"`
	Image1URL  *string     `json:"image1Url"`
	Image2URL  *string     `json:"image2Url"`
	Image3URL  *string     `json:"image3Url"`
	VideoURL   *string     `json:"videoUrl"`
	Lecturer   LecturerDTO `json:"lecturer"`
	OwnerID    *string     `json:"ownerId"`
	OwnerEmail *string     `json:"ownerEmail"`
	VideoID    string      `json:"videoId"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type VideoListResponse struct {
	Items []VideoDTO `json:"items"`
}

type PlayResponse struct {
	Video    VideoDTO     `json:"video"`
	Comments []CommentDTO `json:"comments"`
}

type SubjectVideosResponse struct {
	Subject SubjectDTO `json:"subject"`
	Items   []VideoDTO `json:"items"`
}

func assetURL(id *string) *string {
	if id == nil {
		return nil
	}
	url := services.BuildAssetURL(*id)
	return &url
}

func buildVideoDTO(v models.VideoListing) VideoDTO {
	return VideoDTO{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		ThumbnailURL: assetURL(v.ThumbnailMediaID),
		UploadURL:    services.BuildAssetURL(v.UploadMediaID),
		Subject:      SubjectDTO{ID: v.SubjectID, Name: v.SubjectName},
		OwnerID:      v.OwnerID,
		OwnerEmail:   v.OwnerEmail,
		ViewCount:    v.ViewCount,
		CommentCount: v.CommentCount,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

func buildVideoDTOs(items []models.VideoListing) []VideoDTO {
	out := make([]VideoDTO, 0, len(items))
	for _, item := range items {
		out = append(out, buildVideoDTO(item))
	}
	return out
}

func buildCommentDTO(c models.Comment, lecturer LecturerDTO, ownerEmail *string) CommentDTO {
	return CommentDTO{
		ID:         c.ID,
		Title:      c.Title,
		Text:       c.Text,
		Image1URL:  assetURL(c.Image1MediaID),
		Image2URL:  assetURL(c.Image2MediaID),
		Image3URL:  assetURL(c.Image3MediaID),
		VideoURL:   assetURL(c.VideoMediaID),
		Lecturer:   lecturer,
		OwnerID:    c.OwnerID,
		OwnerEmail: ownerEmail,
		VideoID:    c.VideoID,
		CreatedAt:  c.CreatedAt,
	}
}

func buildSubjectDTO(s models.Subject) SubjectDTO {
	return SubjectDTO{ID: s.ID, Name: s.Name}
}

func buildLecturerDTO(l models.Lecturer) LecturerDTO {
	return LecturerDTO{ID: l.ID, Name: l.Name, Email: l.Email}
}
