package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"videoportal-backend-go/internal/db"
	"videoportal-backend-go/internal/migrations"
	"videoportal-backend-go/internal/models"

	"github.com/jmoiron/sqlx"
)

func testUser(id string) models.User {
	return models.User{ID: id, Email: id + "@example.com", IsActive: true}
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.Open("sqlite", filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := migrations.Apply(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []MailMessage
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last(t *testing.T) MailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

// linkToken pulls the token following prefix out of a mail body.
func linkToken(t *testing.T, msg MailMessage, prefix string) string {
	t.Helper()
	idx := strings.Index(msg.Body, prefix)
	if idx < 0 {
		t.Fatalf("mail body has no %q link:\n%s", prefix, msg.Body)
	}
	rest := msg.Body[idx+len(prefix):]
	if end := strings.IndexAny(rest, " \n"); end >= 0 {
		rest = rest[:end]
	}
	token, err := url.PathUnescape(rest)
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}
	return token
}

type fixture struct {
	db       *sqlx.DB
	clock    *fakeClock
	mailer   *recordingMailer
	accounts *Accounts
	content  *Content
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := openTestDB(t)
	clock := &fakeClock{now: time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)}
	mailer := &recordingMailer{}
	secret := []byte("fixture-secret")
	return &fixture{
		db:     database,
		clock:  clock,
		mailer: mailer,
		accounts: &Accounts{
			DB:            database,
			Tokens:        TokenService{Secret: secret, Issuer: "videoportal", AccessTTL: time.Hour, Now: clock.Now},
			Signer:        Signer{Secret: secret, Issuer: "videoportal", Now: clock.Now},
			Mailer:        mailer,
			BaseURL:       "http://portal.test",
			ActivationTTL: DefaultConfirmationMaxAge,
			Now:           clock.Now,
		},
		content: &Content{
			DB:            database,
			MediaPath:     t.TempDir(),
			Mailer:        mailer,
			BaseURL:       "http://portal.test",
			OperatorEmail: "operator@portal.test",
			FallbackEmail: "fallback@portal.test",
			Now:           clock.Now,
		},
	}
}

// activeUser registers and activates an account through the mailed link.
func (f *fixture) activeUser(t *testing.T, email string) models.User {
	t.Helper()
	ctx := context.Background()
	if _, err := f.accounts.Register(ctx, RegisterForm{Email: email, Password: "s3cret-pass", PasswordConfirm: "s3cret-pass"}); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	token := linkToken(t, f.mailer.last(t), "/api/user_create/complete/")
	user, err := f.accounts.ConfirmActivation(ctx, token)
	if err != nil {
		t.Fatalf("activate %s: %v", email, err)
	}
	return user
}

func (f *fixture) staff() models.User {
	user := testUser("staff")
	user.IsStaff = true
	return user
}

func (f *fixture) subject(t *testing.T, name string) models.Subject {
	t.Helper()
	subject, err := CreateSubject(context.Background(), f.db, f.staff(), SubjectForm{Name: name}, f.clock.Now())
	if err != nil {
		t.Fatalf("create subject: %v", err)
	}
	return subject
}

func (f *fixture) lecturer(t *testing.T, name, email string) models.Lecturer {
	t.Helper()
	lecturer, err := CreateLecturer(context.Background(), f.db, f.staff(), LecturerForm{Name: name, Email: email}, f.clock.Now())
	if err != nil {
		t.Fatalf("create lecturer: %v", err)
	}
	return lecturer
}

func (f *fixture) video(t *testing.T, owner models.User, subjectID, title, description string) models.VideoListing {
	t.Helper()
	f.clock.Advance(time.Minute)
	video, err := f.content.UploadVideo(context.Background(), owner,
		VideoForm{Title: title, Description: description, SubjectID: subjectID},
		&UploadFile{Filename: "clip.mp4", Body: bytes.NewReader(mp4Bytes())}, nil)
	if err != nil {
		t.Fatalf("upload %q: %v", title, err)
	}
	return video
}

// mp4Bytes is a minimal ISO base media header that sniffs as video/mp4.
func mp4Bytes() []byte {
	data := []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm', 'i', 's', 'o', '2',
	}
	return append(data, make([]byte, 64)...)
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func countRows(t *testing.T, database *sqlx.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := database.Get(&n, database.Rebind(query), args...); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
