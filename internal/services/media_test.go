package services

import (
	"bytes"
	"context"
	"image"
	"io"
	"mime"
	"os"
	"strings"
	"testing"
	"time"
)

func TestPrepareThumbnailFitsBox(t *testing.T) {
	reader, err := PrepareThumbnail(pngBytes(t, 1280, 1280))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	img, format, err := image.Decode(reader)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png kept, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 360 || b.Dy() != 360 {
		t.Fatalf("expected 360x360, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestPrepareThumbnailKeepsSmallImages(t *testing.T) {
	data := pngBytes(t, 64, 32)
	reader, err := PrepareThumbnail(data)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	got, _ := io.ReadAll(reader)
	if !bytes.Equal(got, data) {
		t.Fatalf("small image should pass through unchanged")
	}
}

func TestPrepareThumbnailRejectsNonImages(t *testing.T) {
	_, err := PrepareThumbnail([]byte("plain text, not a picture"))
	if serr, ok := AsServiceError(err); !ok || serr.Fields["thumbnail"] == "" {
		t.Fatalf("expected thumbnail field error, got %v", err)
	}
}

func TestSaveMediaAssetDatedKeyAndHash(t *testing.T) {
	database := openTestDB(t)
	base := t.TempDir()
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	asset, err := SaveMediaAsset(context.Background(), database, base, "upload", MediaUpload{
		Bucket:   BucketVideos,
		Kind:     MediaKindVideo,
		Filename: "Lecture One.MP4",
		Dated:    true,
		Body:     bytes.NewReader(mp4Bytes()),
	}, now)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(asset.StorageKey, "2024/03/20/") || !strings.HasSuffix(asset.StorageKey, ".mp4") {
		t.Fatalf("unexpected storage key %s", asset.StorageKey)
	}
	if asset.SizeBytes != int64(len(mp4Bytes())) || len(asset.Sha256) != 64 {
		t.Fatalf("unexpected size/hash %+v", asset)
	}
	if asset.Filename == nil || *asset.Filename != "Lecture One.MP4" {
		t.Fatalf("unexpected filename %v", asset.Filename)
	}
	if _, err := os.Stat(AssetPath(base, asset)); err != nil {
		t.Fatalf("file missing: %v", err)
	}
	stored, err := GetMediaAsset(context.Background(), database, asset.ID)
	if err != nil || stored.Sha256 != asset.Sha256 {
		t.Fatalf("lookup: %+v %v", stored, err)
	}
}

func TestSaveMediaAssetRejectsEmptyFile(t *testing.T) {
	database := openTestDB(t)
	_, err := SaveMediaAsset(context.Background(), database, t.TempDir(), "image1", MediaUpload{
		Bucket: BucketReplyImages,
		Kind:   MediaKindImage,
		Body:   bytes.NewReader(nil),
	}, time.Now())
	if serr, ok := AsServiceError(err); !ok || serr.Fields["image1"] == "" {
		t.Fatalf("expected image1 field error, got %v", err)
	}
}

func TestMailRecipientsDropsDuplicates(t *testing.T) {
	got := mailRecipients("a@x.com", "", "A@x.com", "b@x.com")
	if len(got) != 2 || got[0] != "a@x.com" || got[1] != "b@x.com" {
		t.Fatalf("unexpected recipients %v", got)
	}
}

func TestRenderCommentMail(t *testing.T) {
	msg, err := renderMail(mailComment, []string{"a@x.com"}, commentMail{
		Title:         "Question",
		VideoTitle:    "Limits",
		LecturerName:  "Dr. Smith",
		LecturerEmail: "smith@x.com",
		Text:          "Why?",
		Link:          "http://portal.test/api/play/v1",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "New comment: Question" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"Limits", "Dr. Smith <smith@x.com>", "http://portal.test/api/play/v1"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestDeleteAssetsSkipsMissingRowsAndReportsFailures(t *testing.T) {
	database := openTestDB(t)
	base := t.TempDir()
	ctx := context.Background()
	asset, err := SaveMediaAsset(ctx, database, base, "image1", MediaUpload{
		Bucket:   BucketReplyImages,
		Kind:     MediaKindImage,
		Filename: "a.png",
		Body:     bytes.NewReader(pngBytes(t, 4, 4)),
	}, time.Now())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	files, err := DeleteAssets(ctx, database, base, []string{"missing", asset.ID})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(files) != 1 || files[0] != AssetPath(base, asset) {
		t.Fatalf("unexpected files %v", files)
	}
	_ = database.Close()
	if _, err := DeleteAssets(ctx, database, base, []string{asset.ID}); err == nil {
		t.Fatal("expected a database error to be returned")
	}
}

func TestComposeMailEncodesSubject(t *testing.T) {
	subject := "コメント: 極限の質問\r\nBcc: x@evil.test"
	raw := string(composeMail("portal@x.com", MailMessage{To: []string{"a@x.com"}, Subject: subject, Body: "line1\nline2"}))
	headers, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatalf("missing header separator in %q", raw)
	}
	var encoded string
	for _, line := range strings.Split(headers, "\r\n") {
		for _, r := range line {
			if r > 0x7e {
				t.Fatalf("non-ASCII header line %q", line)
			}
		}
		if strings.HasPrefix(line, "Bcc:") {
			t.Fatalf("subject leaked a header: %q", line)
		}
		if v, found := strings.CutPrefix(line, "Subject: "); found {
			encoded = v
		}
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(encoded)
	if err != nil || decoded != subject {
		t.Fatalf("subject round trip: %q %v", decoded, err)
	}
	if body != "line1\r\nline2" {
		t.Fatalf("unexpected body %q", body)
	}
}
