package services

import (
	"context"
	"fmt"
	"strings"

	"videoportal-backend-go/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const maxCommentImages = 3

const commentColumns = `id, title, text, image1_media_id, image2_media_id, image3_media_id, video_media_id, owner_id, video_id, lecturer_id, created_at`

type CommentForm struct {
	Title      string `json:"title" validate:"required,max=255"`
	Text       string `json:"text" validate:"required"`
	LecturerID string `json:"lecturer" validate:"required"`
}

type commentMail struct {
	Title         string
	VideoTitle    string
	LecturerName  string
	LecturerEmail string
	Text          string
	Link          string
}

// VideoComments lists the comments under a video, newest first.
func VideoComments(ctx context.Context, q sqlx.ExtContext, videoID string) ([]models.CommentListing, error) {
	items := []models.CommentListing{}
	err := sqlx.SelectContext(ctx, q, &items, q.Rebind(`
SELECT c.id, c.title, c.text, c.image1_media_id, c.image2_media_id, c.image3_media_id, c.video_media_id,
       c.owner_id, c.video_id, c.lecturer_id, c.created_at,
       l.name AS lecturer_name, u.email AS owner_email
FROM comments c
JOIN lecturers l ON l.id = c.lecturer_id
LEFT JOIN users u ON u.id = c.owner_id
WHERE c.video_id = ?
ORDER BY c.created_at DESC, c.id DESC
`), videoID)
	return items, err
}

func GetComment(ctx context.Context, q sqlx.ExtContext, commentID string) (models.Comment, error) {
	var comment models.Comment
	if err := sqlx.GetContext(ctx, q, &comment, q.Rebind(`SELECT `+commentColumns+` FROM comments WHERE id = ?`), commentID); err != nil {
		return models.Comment{}, notFoundOr(err, "Comment not found")
	}
	return comment, nil
}

// CreateComment posts a comment under a video and bumps its comment count in
// the same transaction. images are positional: images[i] fills slot i+1 and
// an entry without a Body leaves that slot empty. The video owner, the
// lecturer and the operator are notified afterwards.
func (c *Content) CreateComment(ctx context.Context, author models.User, videoID string, form CommentForm, images []UploadFile, video *UploadFile) (models.Comment, error) {
	form.Title = strings.TrimSpace(form.Title)
	form.LecturerID = strings.TrimSpace(form.LecturerID)
	if err := validateForm(form); err != nil {
		return models.Comment{}, err
	}
	if len(images) > maxCommentImages {
		return models.Comment{}, fieldError("images", fmt.Sprintf("Attach at most %d images.", maxCommentImages))
	}

	now := c.now()
	tx, err := c.DB.BeginTxx(ctx, nil)
	if err != nil {
		return models.Comment{}, err
	}
	defer tx.Rollback()
	target, err := GetVideo(ctx, tx, videoID)
	if err != nil {
		return models.Comment{}, err
	}
	lecturer, err := GetLecturer(ctx, tx, form.LecturerID)
	if err != nil {
		if _, ok := AsServiceError(err); ok {
			return models.Comment{}, fieldError("lecturer", "Select a valid choice.")
		}
		return models.Comment{}, err
	}

	var written []string
	committed := false
	defer func() {
		if !committed {
			removeFiles(written)
		}
	}()
	comment := models.Comment{
		ID:         uuid.NewString(),
		Title:      form.Title,
		Text:       form.Text,
		VideoID:    target.ID,
		LecturerID: lecturer.ID,
		CreatedAt:  now,
	}
	if author.ID != "" {
		ownerID := author.ID
		comment.OwnerID = &ownerID
	}
	slots := []**string{&comment.Image1MediaID, &comment.Image2MediaID, &comment.Image3MediaID}
	for i, image := range images {
		if image.Body == nil {
			continue
		}
		field := fmt.Sprintf("image%d", i+1)
		asset, err := SaveMediaAsset(ctx, tx, c.MediaPath, field, MediaUpload{
			Bucket:   BucketReplyImages,
			Kind:     MediaKindImage,
			Filename: image.Filename,
			OwnerID:  author.ID,
			Body:     image.Body,
		}, now)
		if err != nil {
			return models.Comment{}, err
		}
		written = append(written, AssetPath(c.MediaPath, asset))
		assetID := asset.ID
		*slots[i] = &assetID
	}
	if video != nil && video.Body != nil {
		asset, err := SaveMediaAsset(ctx, tx, c.MediaPath, "video", MediaUpload{
			Bucket:   BucketReplyVideos,
			Kind:     MediaKindVideo,
			Filename: video.Filename,
			OwnerID:  author.ID,
			Dated:    true,
			Body:     video.Body,
		}, now)
		if err != nil {
			return models.Comment{}, err
		}
		written = append(written, AssetPath(c.MediaPath, asset))
		comment.VideoMediaID = &asset.ID
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO comments (id, title, text, image1_media_id, image2_media_id, image3_media_id, video_media_id, owner_id, video_id, lecturer_id, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`), comment.ID, comment.Title, comment.Text, comment.Image1MediaID, comment.Image2MediaID, comment.Image3MediaID,
		comment.VideoMediaID, comment.OwnerID, comment.VideoID, comment.LecturerID, comment.CreatedAt)
	if err != nil {
		return models.Comment{}, WrapError(err, "insert comment")
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE videos SET comment_count = comment_count + 1 WHERE id = ?`), target.ID); err != nil {
		return models.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Comment{}, err
	}
	committed = true

	lecturerEmail := lecturer.Email
	if lecturerEmail == "" {
		lecturerEmail = c.FallbackEmail
	}
	err = sendTemplate(ctx, c.Mailer, mailComment, mailRecipients(target.OwnerEmail, lecturerEmail, c.OperatorEmail), commentMail{
		Title:         comment.Title,
		VideoTitle:    target.Title,
		LecturerName:  lecturer.Name,
		LecturerEmail: lecturerEmail,
		Text:          comment.Text,
		Link:          c.playLink(target.ID),
	})
	if err != nil {
		return comment, WrapError(err, "send comment mail")
	}
	return comment, nil
}

// DeleteComment removes a comment and decrements the video's count. The
// comment author, the video owner or a superuser may delete it.
func (c *Content) DeleteComment(ctx context.Context, principal models.User, commentID string) (string, error) {
	tx, err := c.DB.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	comment, err := GetComment(ctx, tx, commentID)
	if err != nil {
		return "", err
	}
	target, err := GetVideo(ctx, tx, comment.VideoID)
	if err != nil {
		return "", err
	}
	isAuthor := comment.OwnerID != nil && *comment.OwnerID == principal.ID
	if !isAuthor && target.OwnerID != principal.ID && !principal.IsSuperuser {
		return "", ErrPermissionDenied
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM comments WHERE id = ?`), commentID); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE videos SET comment_count = comment_count - 1 WHERE id = ? AND comment_count > 0`), target.ID); err != nil {
		return "", err
	}
	files, err := DeleteAssets(ctx, tx, c.MediaPath, comment.MediaIDs())
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	removeFiles(files)
	return target.ID, nil
}

// mailRecipients drops empty and repeated addresses, keeping order.
func mailRecipients(addrs ...string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[strings.ToLower(addr)] {
			continue
		}
		seen[strings.ToLower(addr)] = true
		out = append(out, addr)
	}
	return out
}
