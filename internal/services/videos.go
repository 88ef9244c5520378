package services

import (
	"context"
	"io"
	"strings"
	"time"

	"videoportal-backend-go/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UploadFile is one file taken from a multipart form.
type UploadFile struct {
	Filename string
	Body     io.Reader
}

type VideoForm struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	SubjectID   string `json:"subject" validate:"required"`
}

// Content serves videos and comments and sends the notifications that go
// with them.
type Content struct {
	DB            *sqlx.DB
	MediaPath     string
	Mailer        Mailer
	BaseURL       string
	OperatorEmail string
	FallbackEmail string
	Now           func() time.Time
}

func (c *Content) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Content) playLink(videoID string) string {
	return c.BaseURL + "/api/play/" + videoID
}

const videoListingSelect = `
SELECT v.id, v.title, v.description, v.thumbnail_media_id, v.upload_media_id, v.subject_id, v.owner_id,
       v.view_count, v.comment_count, v.created_at, v.updated_at,
       s.name AS subject_name, u.email AS owner_email
FROM videos v
JOIN subjects s ON s.id = v.subject_id
JOIN users u ON u.id = v.owner_id`

const videoListingOrder = ` ORDER BY v.created_at DESC, v.id DESC`

// likePattern turns a keyword into a substring pattern, escaping LIKE
// wildcards so they match literally.
func likePattern(keyword string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(keyword) + "%"
}

func ilike(column string) string {
	return "lower(" + column + `) LIKE lower(?) ESCAPE '\'`
}

// ListOwnVideos returns the owner's videos, newest first, optionally narrowed
// to those whose title or description contains keyword.
func ListOwnVideos(ctx context.Context, q sqlx.ExtContext, ownerID, keyword string) ([]models.VideoListing, error) {
	query := videoListingSelect + ` WHERE v.owner_id = ?`
	args := []interface{}{ownerID}
	if keyword = strings.TrimSpace(keyword); keyword != "" {
		pattern := likePattern(keyword)
		query += ` AND (` + ilike("v.title") + ` OR ` + ilike("v.description") + `)`
		args = append(args, pattern, pattern)
	}
	items := []models.VideoListing{}
	err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query+videoListingOrder), args...)
	return items, err
}

// ListAllVideos returns every video, newest first. The keyword also matches
// the owner's email.
func ListAllVideos(ctx context.Context, q sqlx.ExtContext, keyword string) ([]models.VideoListing, error) {
	query := videoListingSelect
	args := []interface{}{}
	if keyword = strings.TrimSpace(keyword); keyword != "" {
		pattern := likePattern(keyword)
		query += ` WHERE ` + ilike("v.title") + ` OR ` + ilike("v.description") + ` OR ` + ilike("u.email")
		args = append(args, pattern, pattern, pattern)
	}
	items := []models.VideoListing{}
	err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query+videoListingOrder), args...)
	return items, err
}

func ListBySubject(ctx context.Context, q sqlx.ExtContext, subjectID, ownerID string) (models.Subject, []models.VideoListing, error) {
	subject, err := GetSubject(ctx, q, subjectID)
	if err != nil {
		return models.Subject{}, nil, err
	}
	items := []models.VideoListing{}
	err = sqlx.SelectContext(ctx, q, &items, q.Rebind(videoListingSelect+` WHERE v.owner_id = ? AND v.subject_id = ?`+videoListingOrder), ownerID, subjectID)
	return subject, items, err
}

func GetVideo(ctx context.Context, q sqlx.ExtContext, videoID string) (models.VideoListing, error) {
	var item models.VideoListing
	if err := sqlx.GetContext(ctx, q, &item, q.Rebind(videoListingSelect+` WHERE v.id = ?`), videoID); err != nil {
		return models.VideoListing{}, notFoundOr(err, "Video not found")
	}
	return item, nil
}

// PlayVideo counts a view and returns the video. Every call counts.
func PlayVideo(ctx context.Context, q sqlx.ExtContext, videoID string) (models.VideoListing, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE videos SET view_count = view_count + 1 WHERE id = ?`), videoID)
	if err != nil {
		return models.VideoListing{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.VideoListing{}, err
	} else if n == 0 {
		return models.VideoListing{}, ErrNotFound("Video not found")
	}
	return GetVideo(ctx, q, videoID)
}

// UploadVideo stores the video file and optional thumbnail and records the
// video for owner. The owner is mailed a reminder once the upload commits.
func (c *Content) UploadVideo(ctx context.Context, owner models.User, form VideoForm, upload *UploadFile, thumbnail *UploadFile) (models.VideoListing, error) {
	form.Title = strings.TrimSpace(form.Title)
	form.SubjectID = strings.TrimSpace(form.SubjectID)
	if err := validateForm(form); err != nil {
		return models.VideoListing{}, err
	}
	if upload == nil || upload.Body == nil {
		return models.VideoListing{}, fieldError("upload", "This field is required.")
	}
	var thumbBody io.Reader
	if thumbnail != nil && thumbnail.Body != nil {
		data, err := io.ReadAll(thumbnail.Body)
		if err != nil {
			return models.VideoListing{}, WrapError(err, "read thumbnail")
		}
		if thumbBody, err = PrepareThumbnail(data); err != nil {
			return models.VideoListing{}, err
		}
	}

	now := c.now()
	tx, err := c.DB.BeginTxx(ctx, nil)
	if err != nil {
		return models.VideoListing{}, err
	}
	defer tx.Rollback()
	if _, err := GetSubject(ctx, tx, form.SubjectID); err != nil {
		if _, ok := AsServiceError(err); ok {
			return models.VideoListing{}, fieldError("subject", "Select a valid choice.")
		}
		return models.VideoListing{}, err
	}

	var written []string
	committed := false
	defer func() {
		if !committed {
			removeFiles(written)
		}
	}()
	video, err := SaveMediaAsset(ctx, tx, c.MediaPath, "upload", MediaUpload{
		Bucket:   BucketVideos,
		Kind:     MediaKindVideo,
		Filename: upload.Filename,
		OwnerID:  owner.ID,
		Dated:    true,
		Body:     upload.Body,
	}, now)
	if err != nil {
		return models.VideoListing{}, err
	}
	written = append(written, AssetPath(c.MediaPath, video))
	var thumbID *string
	if thumbBody != nil {
		thumb, err := SaveMediaAsset(ctx, tx, c.MediaPath, "thumbnail", MediaUpload{
			Bucket:   BucketThumbnails,
			Kind:     MediaKindImage,
			Filename: thumbnail.Filename,
			OwnerID:  owner.ID,
			Body:     thumbBody,
		}, now)
		if err != nil {
			return models.VideoListing{}, err
		}
		written = append(written, AssetPath(c.MediaPath, thumb))
		thumbID = &thumb.ID
	}

	videoID := uuid.NewString()
	_, err = tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO videos (id, title, description, thumbnail_media_id, upload_media_id, subject_id, owner_id, view_count, comment_count, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,0,0,?,?)
`), videoID, form.Title, form.Description, thumbID, video.ID, form.SubjectID, owner.ID, now, now)
	if err != nil {
		return models.VideoListing{}, WrapError(err, "insert video")
	}
	if err := tx.Commit(); err != nil {
		return models.VideoListing{}, err
	}
	committed = true

	item, err := GetVideo(ctx, c.DB, videoID)
	if err != nil {
		return models.VideoListing{}, err
	}
	err = sendTemplate(ctx, c.Mailer, mailUpload, []string{owner.Email}, struct {
		Title string
		Link  string
	}{item.Title, c.playLink(item.ID)})
	if err != nil {
		return item, WrapError(err, "send upload mail")
	}
	return item, nil
}

// DeleteVideo removes a video with its comments and stored files. Only the
// owner or a superuser may do so.
func (c *Content) DeleteVideo(ctx context.Context, principal models.User, videoID string) error {
	tx, err := c.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	video, err := GetVideo(ctx, tx, videoID)
	if err != nil {
		return err
	}
	if video.OwnerID != principal.ID && !principal.IsSuperuser {
		return ErrPermissionDenied
	}
	comments := []models.Comment{}
	if err := sqlx.SelectContext(ctx, tx, &comments, tx.Rebind(`SELECT `+commentColumns+` FROM comments WHERE video_id = ?`), videoID); err != nil {
		return err
	}
	assetIDs := []string{video.UploadMediaID}
	if video.ThumbnailMediaID != nil {
		assetIDs = append(assetIDs, *video.ThumbnailMediaID)
	}
	for _, comment := range comments {
		assetIDs = append(assetIDs, comment.MediaIDs()...)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM comments WHERE video_id = ?`), videoID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM videos WHERE id = ?`), videoID); err != nil {
		return err
	}
	files, err := DeleteAssets(ctx, tx, c.MediaPath, assetIDs)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	removeFiles(files)
	return nil
}
