package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPlayVideoCountsEveryView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "a@x.com")
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	for i := 0; i < 2; i++ {
		if _, err := PlayVideo(ctx, f.db, video.ID); err != nil {
			t.Fatalf("play: %v", err)
		}
	}
	got, err := GetVideo(ctx, f.db, video.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ViewCount != video.ViewCount+2 {
		t.Fatalf("expected view count %d, got %d", video.ViewCount+2, got.ViewCount)
	}
	if _, err := PlayVideo(ctx, f.db, "missing"); !errors.Is(err, ServiceError{Code: CodeNotFound}) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOwnVideosIsOwnerScopedAndSearchable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.activeUser(t, "alice@x.com")
	bob := f.activeUser(t, "bob@x.com")
	math := f.subject(t, "Math")
	first := f.video(t, alice, math.ID, "Derivatives", "chain rule")
	second := f.video(t, alice, math.ID, "Integrals", "100% by parts")
	f.video(t, bob, math.ID, "Derivatives for Bob", "")

	items, err := ListOwnVideos(ctx, f.db, alice.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != second.ID || items[1].ID != first.ID {
		t.Fatalf("expected alice's videos newest first, got %+v", items)
	}
	for _, item := range items {
		if item.OwnerID != alice.ID {
			t.Fatalf("listing leaked a video of %s", item.OwnerEmail)
		}
	}

	items, _ = ListOwnVideos(ctx, f.db, alice.ID, "CHAIN")
	if len(items) != 1 || items[0].ID != first.ID {
		t.Fatalf("expected description match, got %+v", items)
	}
	items, _ = ListOwnVideos(ctx, f.db, alice.ID, "%")
	if len(items) != 1 || items[0].ID != second.ID {
		t.Fatalf("expected literal percent match, got %+v", items)
	}
	items, _ = ListOwnVideos(ctx, f.db, alice.ID, "_")
	if len(items) != 0 {
		t.Fatalf("underscore must match literally, got %+v", items)
	}
}

func TestListAllVideosMatchesOwnerEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.activeUser(t, "alice@x.com")
	bob := f.activeUser(t, "bob@x.com")
	math := f.subject(t, "Math")
	f.video(t, alice, math.ID, "Derivatives", "")
	bobs := f.video(t, bob, math.ID, "Vectors", "")

	all, err := ListAllVideos(ctx, f.db, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected two videos, got %d %v", len(all), err)
	}
	items, _ := ListAllVideos(ctx, f.db, "BOB@")
	if len(items) != 1 || items[0].ID != bobs.ID {
		t.Fatalf("expected owner email match, got %+v", items)
	}
}

func TestListBySubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.activeUser(t, "alice@x.com")
	math := f.subject(t, "Math")
	physics := f.subject(t, "Physics")
	f.video(t, alice, math.ID, "Derivatives", "")
	optics := f.video(t, alice, physics.ID, "Optics", "")

	subject, items, err := ListBySubject(ctx, f.db, physics.ID, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if subject.Name != "Physics" || len(items) != 1 || items[0].ID != optics.ID {
		t.Fatalf("unexpected listing %s %+v", subject.Name, items)
	}
	if _, _, err := ListBySubject(ctx, f.db, "missing", alice.ID); !errors.Is(err, ServiceError{Code: CodeNotFound}) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCommentRoundTripRestoresCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	student := f.activeUser(t, "student@x.com")
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	lecturer := f.lecturer(t, "Dr. Smith", "smith@x.com")

	comment, err := f.content.CreateComment(ctx, student, video.ID, CommentForm{Title: "Question", Text: "Why?", LecturerID: lecturer.ID}, nil, nil)
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	got, _ := GetVideo(ctx, f.db, video.ID)
	if got.CommentCount != video.CommentCount+1 {
		t.Fatalf("expected comment count +1, got %d", got.CommentCount)
	}
	msg := f.mailer.last(t)
	want := []string{"owner@x.com", "smith@x.com", "operator@portal.test"}
	if len(msg.To) != len(want) {
		t.Fatalf("unexpected recipients %v", msg.To)
	}
	for i := range want {
		if msg.To[i] != want[i] {
			t.Fatalf("unexpected recipients %v", msg.To)
		}
	}

	comments, err := VideoComments(ctx, f.db, video.ID)
	if err != nil || len(comments) != 1 || comments[0].LecturerName != "Dr. Smith" {
		t.Fatalf("unexpected comments %+v %v", comments, err)
	}

	videoID, err := f.content.DeleteComment(ctx, student, comment.ID)
	if err != nil || videoID != video.ID {
		t.Fatalf("delete: %v", err)
	}
	got, _ = GetVideo(ctx, f.db, video.ID)
	if got.CommentCount != video.CommentCount {
		t.Fatalf("expected original count, got %d", got.CommentCount)
	}
}

func TestCommentFallsBackWhenLecturerHasNoEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	lecturer := f.lecturer(t, "Guest", "")
	if _, err := f.content.CreateComment(ctx, owner, video.ID, CommentForm{Title: "Note", Text: "See slide 3", LecturerID: lecturer.ID}, nil, nil); err != nil {
		t.Fatalf("comment: %v", err)
	}
	msg := f.mailer.last(t)
	found := false
	for _, to := range msg.To {
		if to == "fallback@portal.test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fallback recipient, got %v", msg.To)
	}
}

func TestCommentAttachmentsAreStoredAndRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	lecturer := f.lecturer(t, "Dr. Smith", "smith@x.com")
	images := []UploadFile{
		{Filename: "a.png", Body: bytes.NewReader(pngBytes(t, 8, 8))},
		{Filename: "b.png", Body: bytes.NewReader(pngBytes(t, 8, 8))},
	}
	comment, err := f.content.CreateComment(ctx, owner, video.ID, CommentForm{Title: "Pics", Text: "Board", LecturerID: lecturer.ID},
		images, &UploadFile{Filename: "reply.mp4", Body: bytes.NewReader(mp4Bytes())})
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if comment.Image1MediaID == nil || comment.Image2MediaID == nil || comment.Image3MediaID != nil || comment.VideoMediaID == nil {
		t.Fatalf("unexpected attachment slots %+v", comment)
	}
	reply, err := GetMediaAsset(ctx, f.db, *comment.VideoMediaID)
	if err != nil {
		t.Fatalf("reply asset: %v", err)
	}
	if reply.StorageKey[:10] != "2024/03/20" {
		t.Fatalf("reply video should be stored under its upload date, got %s", reply.StorageKey)
	}
	path := AssetPath(f.content.MediaPath, reply)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if _, err := f.content.DeleteComment(ctx, owner, comment.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, got %v", err)
	}
	if n := countRows(t, f.db, `SELECT count(*) FROM media_assets WHERE bucket <> ?`, BucketVideos); n != 0 {
		t.Fatalf("expected attachment rows removed, got %d", n)
	}
}

func TestCommentImagesKeepTheirSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	lecturer := f.lecturer(t, "Dr. Smith", "")
	images := []UploadFile{{}, {Filename: "b.png", Body: bytes.NewReader(pngBytes(t, 8, 8))}, {}}
	comment, err := f.content.CreateComment(ctx, owner, video.ID, CommentForm{Title: "Pics", Text: "Board", LecturerID: lecturer.ID}, images, nil)
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if comment.Image1MediaID != nil || comment.Image2MediaID == nil || comment.Image3MediaID != nil {
		t.Fatalf("expected only the second slot filled, got %+v", comment)
	}
	stored, err := GetComment(ctx, f.db, comment.ID)
	if err != nil {
		t.Fatalf("get comment: %v", err)
	}
	if stored.Image1MediaID != nil || stored.Image2MediaID == nil || *stored.Image2MediaID != *comment.Image2MediaID {
		t.Fatalf("stored slots differ: %+v", stored)
	}
}

func TestCommentRejectsTooManyImagesAndWrongTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	lecturer := f.lecturer(t, "Dr. Smith", "")
	form := CommentForm{Title: "Pics", Text: "Board", LecturerID: lecturer.ID}
	four := make([]UploadFile, 4)
	for i := range four {
		four[i] = UploadFile{Filename: "x.png", Body: bytes.NewReader(pngBytes(t, 4, 4))}
	}
	if _, err := f.content.CreateComment(ctx, owner, video.ID, form, four, nil); err == nil {
		t.Fatalf("expected error for four images")
	}
	notImage := []UploadFile{{Filename: "x.png", Body: bytes.NewReader(mp4Bytes())}}
	_, err := f.content.CreateComment(ctx, owner, video.ID, form, notImage, nil)
	if serr, ok := AsServiceError(err); !ok || serr.Fields["image1"] == "" {
		t.Fatalf("expected image1 field error, got %v", err)
	}
	got, _ := GetVideo(ctx, f.db, video.ID)
	if got.CommentCount != 0 {
		t.Fatalf("failed comments must not count, got %d", got.CommentCount)
	}
	entries, _ := os.ReadDir(filepath.Join(f.content.MediaPath, BucketReplyImages))
	if len(entries) != 0 {
		t.Fatalf("expected no leftover reply images, got %d", len(entries))
	}
}

func TestDeleteCommentPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	author := f.activeUser(t, "author@x.com")
	stranger := f.activeUser(t, "stranger@x.com")
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	lecturer := f.lecturer(t, "Dr. Smith", "")
	form := CommentForm{Title: "Q", Text: "?", LecturerID: lecturer.ID}

	first, _ := f.content.CreateComment(ctx, author, video.ID, form, nil, nil)
	if _, err := f.content.DeleteComment(ctx, stranger, first.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := f.content.DeleteComment(ctx, owner, first.ID); err != nil {
		t.Fatalf("video owner delete: %v", err)
	}
	second, _ := f.content.CreateComment(ctx, author, video.ID, form, nil, nil)
	admin := testUser("admin")
	admin.IsSuperuser = true
	if _, err := f.content.DeleteComment(ctx, admin, second.ID); err != nil {
		t.Fatalf("superuser delete: %v", err)
	}
}

func TestUploadVideoValidatesFilesAndMailsOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	math := f.subject(t, "Math")
	form := VideoForm{Title: "Limits", SubjectID: math.ID}

	_, err := f.content.UploadVideo(ctx, owner, form, &UploadFile{Filename: "x.mp4", Body: bytes.NewReader(pngBytes(t, 4, 4))}, nil)
	if serr, ok := AsServiceError(err); !ok || serr.Fields["upload"] == "" {
		t.Fatalf("expected upload field error, got %v", err)
	}
	_, err = f.content.UploadVideo(ctx, owner, VideoForm{Title: "Limits", SubjectID: "missing"}, &UploadFile{Filename: "x.mp4", Body: bytes.NewReader(mp4Bytes())}, nil)
	if serr, ok := AsServiceError(err); !ok || serr.Fields["subject"] == "" {
		t.Fatalf("expected subject field error, got %v", err)
	}
	if n := countRows(t, f.db, `SELECT count(*) FROM media_assets`); n != 0 {
		t.Fatalf("rejected uploads must not leave assets, got %d", n)
	}

	video, err := f.content.UploadVideo(ctx, owner, form,
		&UploadFile{Filename: "lecture.MP4", Body: bytes.NewReader(mp4Bytes())},
		&UploadFile{Filename: "thumb.png", Body: bytes.NewReader(pngBytes(t, 1280, 720))})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if video.SubjectName != "Math" || video.OwnerEmail != "owner@x.com" || video.ThumbnailMediaID == nil {
		t.Fatalf("unexpected video %+v", video)
	}
	upload, _ := GetMediaAsset(ctx, f.db, video.UploadMediaID)
	if upload.ContentType != "video/mp4" || filepath.Ext(upload.StorageKey) != ".mp4" {
		t.Fatalf("unexpected upload asset %+v", upload)
	}
	msg := f.mailer.last(t)
	if msg.To[0] != "owner@x.com" || !bytes.Contains([]byte(msg.Body), []byte("/api/play/"+video.ID)) {
		t.Fatalf("unexpected upload mail %+v", msg)
	}
}

func TestDeleteVideoPermissionsAndCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	stranger := f.activeUser(t, "stranger@x.com")
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	lecturer := f.lecturer(t, "Dr. Smith", "")
	if _, err := f.content.CreateComment(ctx, stranger, video.ID, CommentForm{Title: "Q", Text: "?", LecturerID: lecturer.ID}, nil, nil); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if err := f.content.DeleteVideo(ctx, stranger, video.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := f.content.DeleteVideo(ctx, owner, video.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := countRows(t, f.db, `SELECT count(*) FROM comments`); n != 0 {
		t.Fatalf("comments must go with the video, got %d", n)
	}
	if n := countRows(t, f.db, `SELECT count(*) FROM media_assets`); n != 0 {
		t.Fatalf("media must go with the video, got %d", n)
	}
	if _, err := GetVideo(ctx, f.db, video.ID); !errors.Is(err, ServiceError{Code: CodeNotFound}) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogProtectsReferencedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	math := f.subject(t, "Math")
	video := f.video(t, owner, math.ID, "Limits", "")
	lecturer := f.lecturer(t, "Dr. Smith", "")
	if _, err := f.content.CreateComment(ctx, owner, video.ID, CommentForm{Title: "Q", Text: "?", LecturerID: lecturer.ID}, nil, nil); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if err := DeleteSubject(ctx, f.db, f.staff(), math.ID); !errors.Is(err, ServiceError{Code: CodeConflict}) {
		t.Fatalf("expected conflict deleting subject, got %v", err)
	}
	if err := DeleteLecturer(ctx, f.db, f.staff(), lecturer.ID); !errors.Is(err, ServiceError{Code: CodeConflict}) {
		t.Fatalf("expected conflict deleting lecturer, got %v", err)
	}
	unused := f.subject(t, "Unused")
	if err := DeleteSubject(ctx, f.db, owner, unused.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-staff must not delete subjects, got %v", err)
	}
	if err := DeleteSubject(ctx, f.db, f.staff(), unused.ID); err != nil {
		t.Fatalf("delete unused subject: %v", err)
	}
}

func TestCatalogValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := CreateSubject(ctx, f.db, f.staff(), SubjectForm{Name: "A subject name well beyond thirty characters"}, f.clock.Now())
	if serr, ok := AsServiceError(err); !ok || serr.Fields["name"] == "" {
		t.Fatalf("expected name error, got %v", err)
	}
	_, err = CreateLecturer(ctx, f.db, f.staff(), LecturerForm{Name: "X", Email: "not-an-email"}, f.clock.Now())
	if serr, ok := AsServiceError(err); !ok || serr.Fields["email"] == "" {
		t.Fatalf("expected email error, got %v", err)
	}
	lecturer := f.lecturer(t, "Old", "")
	updated, err := UpdateLecturer(ctx, f.db, f.staff(), lecturer.ID, LecturerForm{Name: "New", Email: "New@X.com"})
	if err != nil || updated.Name != "New" || updated.Email != "new@x.com" {
		t.Fatalf("update lecturer: %+v %v", updated, err)
	}
	subjects, _ := ListSubjects(ctx, f.db)
	lecturers, _ := ListLecturers(ctx, f.db)
	if len(subjects) != 0 || len(lecturers) != 1 {
		t.Fatalf("unexpected catalog sizes %d %d", len(subjects), len(lecturers))
	}
}

func TestCaptureMetricsCountsPortal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.activeUser(t, "owner@x.com")
	if _, err := f.accounts.Register(ctx, RegisterForm{Email: "pending@x.com", Password: "s3cret-pass", PasswordConfirm: "s3cret-pass"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	video := f.video(t, owner, f.subject(t, "Math").ID, "Limits", "")
	if _, err := PlayVideo(ctx, f.db, video.ID); err != nil {
		t.Fatalf("play: %v", err)
	}
	hub := NewMetricsHub()
	m := &Maintenance{DB: f.db, Hub: hub, DiskPath: f.content.MediaPath, Now: f.clock.Now}
	if err := m.SampleMetrics(ctx); err != nil {
		t.Fatalf("sample: %v", err)
	}
	samples, err := LatestMetrics(ctx, f.db, 10)
	if err != nil || len(samples) != 1 {
		t.Fatalf("expected one stored sample, got %d %v", len(samples), err)
	}
	s := samples[0]
	if s.UsersTotal != 2 || s.UsersPending != 1 || s.VideosTotal != 1 || s.ViewsTotal != 1 || s.CommentsTotal != 0 {
		t.Fatalf("unexpected counts %+v", s)
	}
}
