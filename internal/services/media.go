package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"videoportal-backend-go/internal/models"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	BucketVideos       = "uploads"
	BucketThumbnails   = "thumbnails"
	BucketReplyImages  = "reply_images"
	BucketReplyVideos  = "reply_videos"
	MediaKindVideo     = "VIDEO"
	MediaKindImage     = "IMAGE"
	thumbnailMaxWidth  = 640
	thumbnailMaxHeight = 360
)

// MediaUpload describes one file to store. Dated buckets key files by
// upload day, e.g. uploads/2024/03/20/<id>.mp4.
type MediaUpload struct {
	Bucket   string
	Kind     string
	Filename string
	OwnerID  string
	Dated    bool
	Body     io.Reader
}

func EnsureStoragePath(base string, dir string) (string, error) {
	target := filepath.Join(base, dir)
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", err
	}
	return target, nil
}

// SaveMediaAsset writes the upload under basePath and records it. The stored
// content must sniff as the requested kind; anything else is rejected as a
// validation error on field.
func SaveMediaAsset(ctx context.Context, q sqlx.ExtContext, basePath, field string, upload MediaUpload, now time.Time) (models.MediaAsset, error) {
	assetID := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	storageKey := assetID + ext
	if upload.Dated {
		storageKey = path.Join(now.Format("2006/01/02"), storageKey)
	}
	dirPath, err := EnsureStoragePath(basePath, filepath.Join(upload.Bucket, filepath.FromSlash(path.Dir(storageKey))))
	if err != nil {
		return models.MediaAsset{}, err
	}
	targetPath := filepath.Join(dirPath, path.Base(storageKey))

	file, err := os.Create(targetPath)
	if err != nil {
		return models.MediaAsset{}, err
	}
	hasher := sha256.New()
	writer := io.MultiWriter(file, hasher)
	size, err := io.Copy(writer, upload.Body)
	_ = file.Close()
	if err != nil {
		_ = os.Remove(targetPath)
		return models.MediaAsset{}, err
	}
	if size == 0 {
		_ = os.Remove(targetPath)
		return models.MediaAsset{}, fieldError(field, "The submitted file is empty.")
	}
	detected, err := mimetype.DetectFile(targetPath)
	if err != nil {
		_ = os.Remove(targetPath)
		return models.MediaAsset{}, err
	}
	if !kindAccepts(upload.Kind, detected.String()) {
		_ = os.Remove(targetPath)
		return models.MediaAsset{}, fieldError(field, unsupportedKindMessage(upload.Kind))
	}

	asset := models.MediaAsset{
		ID:          assetID,
		Bucket:      upload.Bucket,
		StorageKey:  storageKey,
		Kind:        upload.Kind,
		ContentType: detected.String(),
		SizeBytes:   size,
		Sha256:      hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt:   now,
	}
	if upload.OwnerID != "" {
		owner := upload.OwnerID
		asset.OwnerUserID = &owner
	}
	if name := strings.TrimSpace(filepath.Base(upload.Filename)); name != "" && name != "." {
		asset.Filename = &name
	}
	_, err = q.ExecContext(ctx, q.Rebind(`
INSERT INTO media_assets (id, owner_user_id, bucket, storage_key, filename, kind, content_type, size_bytes, sha256, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`), asset.ID, asset.OwnerUserID, asset.Bucket, asset.StorageKey, asset.Filename, asset.Kind, asset.ContentType, asset.SizeBytes, asset.Sha256, asset.CreatedAt)
	if err != nil {
		_ = os.Remove(targetPath)
		return models.MediaAsset{}, err
	}
	return asset, nil
}

func kindAccepts(kind, contentType string) bool {
	switch kind {
	case MediaKindVideo:
		return strings.HasPrefix(contentType, "video/")
	case MediaKindImage:
		return strings.HasPrefix(contentType, "image/")
	}
	return true
}

func unsupportedKindMessage(kind string) string {
	if kind == MediaKindImage {
		return "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
	}
	return "Upload a valid video file."
}

// PrepareThumbnail shrinks an image to fit the thumbnail box, keeping its
// format. Images that already fit are returned unchanged.
func PrepareThumbnail(data []byte) (io.Reader, error) {
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, fieldError("thumbnail", unsupportedKindMessage(MediaKindImage))
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fieldError("thumbnail", unsupportedKindMessage(MediaKindImage))
	}
	bounds := img.Bounds()
	if bounds.Dx() <= thumbnailMaxWidth && bounds.Dy() <= thumbnailMaxHeight {
		return bytes.NewReader(data), nil
	}
	resized := imaging.Fit(img, thumbnailMaxWidth, thumbnailMaxHeight, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, thumbnailFormat(detected.String())); err != nil {
		return nil, err
	}
	return &buf, nil
}

func thumbnailFormat(contentType string) imaging.Format {
	switch contentType {
	case "image/png":
		return imaging.PNG
	case "image/gif":
		return imaging.GIF
	}
	return imaging.JPEG
}

func BuildAssetURL(assetID string) string {
	return "/api/media/" + assetID
}

func GetMediaAsset(ctx context.Context, q sqlx.ExtContext, assetID string) (models.MediaAsset, error) {
	var asset models.MediaAsset
	err := sqlx.GetContext(ctx, q, &asset, q.Rebind(`
SELECT id, owner_user_id, bucket, storage_key, filename, kind, content_type, size_bytes, sha256, created_at
FROM media_assets WHERE id = ?`), assetID)
	if err != nil {
		return models.MediaAsset{}, notFoundOr(err, "Media not found")
	}
	return asset, nil
}

// AssetPath is the location of a stored asset on disk.
func AssetPath(basePath string, asset models.MediaAsset) string {
	return filepath.Join(basePath, asset.Bucket, filepath.FromSlash(asset.StorageKey))
}

// DeleteAssets removes the asset rows through q and returns the files to
// remove once the surrounding transaction commits.
func DeleteAssets(ctx context.Context, q sqlx.ExtContext, basePath string, assetIDs []string) ([]string, error) {
	files := make([]string, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		asset, err := GetMediaAsset(ctx, q, assetID)
		if errors.Is(err, ServiceError{Code: CodeNotFound}) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM media_assets WHERE id = ?`), assetID); err != nil {
			return nil, err
		}
		files = append(files, AssetPath(basePath, asset))
	}
	return files, nil
}

func removeFiles(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
