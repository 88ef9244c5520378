package httpapi

import (
	"net/http"
	"time"

	"videoportal-backend-go/internal/config"
	"videoportal-backend-go/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	DB         *sqlx.DB
	Config     config.Config
	Tokens     services.TokenService
	Accounts   *services.Accounts
	Content    *services.Content
	MetricsHub *services.MetricsHub
}

func NewServer(db *sqlx.DB, cfg config.Config, hub *services.MetricsHub, mailer services.Mailer) *Server {
	secret := []byte(cfg.JWTSecret)
	tokens := services.TokenService{
		Secret:    secret,
		Issuer:    cfg.JWTIssuer,
		AccessTTL: time.Duration(cfg.AccessTTLSeconds) * time.Second,
	}
	return &Server{
		DB:     db,
		Config: cfg,
		Tokens: tokens,
		Accounts: &services.Accounts{
			DB:            db,
			Tokens:        tokens,
			Signer:        services.Signer{Secret: secret, Issuer: cfg.JWTIssuer},
			Mailer:        mailer,
			BaseURL:       cfg.PublicBaseURL,
			ActivationTTL: time.Duration(cfg.ActivationTTLSeconds) * time.Second,
		},
		Content: &services.Content{
			DB:            db,
			MediaPath:     cfg.MediaStoragePath,
			Mailer:        mailer,
			BaseURL:       cfg.PublicBaseURL,
			OperatorEmail: cfg.OperatorEmail,
			FallbackEmail: cfg.CommentFallbackEmail,
		},
		MetricsHub: hub,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger)
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	auth := WithAuth(s.DB, s.Tokens)

	r.Route("/api", func(api chi.Router) {
		api.Post("/login", s.Login)
		api.Post("/logout", s.Logout)
		api.Post("/user_create", s.Register)
		api.Post("/user_create/resend", s.ResendActivation)
		api.Get("/user_create/complete/{token}", s.CompleteActivation)
		api.Post("/password_reset", s.PasswordReset)
		api.Post("/password_reset/confirm/{token}", s.PasswordResetConfirm)

		api.Group(func(priv chi.Router) {
			priv.Use(auth)
			priv.Get("/user_detail/{userId}", s.UserDetail)
			priv.Put("/user_update/{userId}", s.UserUpdate)
			priv.Post("/password_change", s.ChangePassword)
			priv.Post("/email/change", s.EmailChange)
			priv.Get("/email/change/complete/{token}", s.EmailChangeComplete)

			priv.Get("/list", s.VideoList)
			priv.Get("/allvideolist", s.AllVideoList)
			priv.Post("/upload", s.UploadVideo)
			priv.Get("/play/{videoId}", s.PlayVideo)
			priv.Get("/subject/{subjectId}", s.SubjectVideos)
			priv.Delete("/delete/{videoId}", s.DeleteVideo)
			priv.Post("/comment/{videoId}", s.CreateComment)
			priv.Delete("/commentdelete/{commentId}", s.DeleteComment)

			priv.Route("/subjects", func(subjects chi.Router) {
				subjects.Get("/", s.ListSubjects)
				subjects.Post("/", s.CreateSubject)
				subjects.Get("/{subjectId}", s.GetSubject)
				subjects.Put("/{subjectId}", s.UpdateSubject)
				subjects.Delete("/{subjectId}", s.DeleteSubject)
			})
			priv.Route("/lecturers", func(lecturers chi.Router) {
				lecturers.Get("/", s.ListLecturers)
				lecturers.Post("/", s.CreateLecturer)
				lecturers.Get("/{lecturerId}", s.GetLecturer)
				lecturers.Put("/{lecturerId}", s.UpdateLecturer)
				lecturers.Delete("/{lecturerId}", s.DeleteLecturer)
			})

			priv.Get("/media/{assetId}", s.MediaContent)

			priv.With(RequireSuperuser).Get("/admin/metrics/history", s.MetricsHistory)
		})
	})

	r.Get("/ws/metrics", s.MetricsSocket)
	return r
}
