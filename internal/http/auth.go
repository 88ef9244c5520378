package httpapi

import (
	"context"
	"net/http"
	"strings"

	"videoportal-backend-go/internal/models"
	"videoportal-backend-go/internal/services"

	"github.com/jmoiron/sqlx"
)

type contextKey string

const ctxUser contextKey = "user"

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// authenticate resolves an access token to an active account.
func authenticate(ctx context.Context, db *sqlx.DB, tokens services.TokenService, tokenStr string) (models.User, bool) {
	if tokenStr == "" {
		return models.User{}, false
	}
	userID, ok := tokens.AccessSubject(tokenStr)
	if !ok {
		return models.User{}, false
	}
	user, err := services.GetUser(ctx, db, userID)
	if err != nil || !user.IsActive {
		return models.User{}, false
	}
	return user, true
}

// WithAuth requires a bearer token of an active account and stores the
// account in the request context.
func WithAuth(db *sqlx.DB, tokenService services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authenticate(r.Context(), db, tokenService, bearerToken(r))
			if !ok {
				WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "Authentication failed", Code: services.CodeUnauthorized})
				return
			}
			ctx := context.WithValue(r.Context(), ctxUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func CurrentUser(r *http.Request) models.User {
	if value, ok := r.Context().Value(ctxUser).(models.User); ok {
		return value
	}
	return models.User{}
}

func RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !CurrentUser(r).IsSuperuser {
			writeServiceError(w, r, services.ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}
