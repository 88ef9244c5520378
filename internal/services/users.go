package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"videoportal-backend-go/internal/models"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, password_hash, first_name, last_name, is_active, is_staff, is_superuser, date_joined, last_login_at, updated_at`

func notFoundOr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound(msg)
	}
	return err
}

func GetUser(ctx context.Context, q sqlx.ExtContext, userID string) (models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, q, &user, q.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID); err != nil {
		return models.User{}, notFoundOr(err, "User not found")
	}
	return user, nil
}

func GetUserByEmail(ctx context.Context, q sqlx.ExtContext, email string) (models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, q, &user, q.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), normalizeEmail(email)); err != nil {
		return models.User{}, notFoundOr(err, "User not found")
	}
	return user, nil
}

func activeUserExists(ctx context.Context, q sqlx.ExtContext, email string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists, q.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE email = ? AND is_active = TRUE)`), email)
	return exists, err
}

// purgePendingUsers deletes inactive placeholder rows holding email. Rows that
// still own videos or comments are kept.
func purgePendingUsers(ctx context.Context, q sqlx.ExtContext, email string) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`
DELETE FROM users
WHERE email = ? AND is_active = FALSE
  AND NOT EXISTS (SELECT 1 FROM videos v WHERE v.owner_id = users.id)
  AND NOT EXISTS (SELECT 1 FROM comments c WHERE c.owner_id = users.id)
`), email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func insertUser(ctx context.Context, q sqlx.ExtContext, user models.User) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
INSERT INTO users (id, email, password_hash, first_name, last_name, is_active, is_staff, is_superuser, date_joined, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`), user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.IsActive, user.IsStaff, user.IsSuperuser, user.DateJoined, user.UpdatedAt)
	return err
}

// activateUser flips a pending row to active. It reports false when the row
// was already active, so a replayed link cannot activate twice.
func activateUser(ctx context.Context, q sqlx.ExtContext, userID string, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET is_active = TRUE, updated_at = ? WHERE id = ? AND is_active = FALSE`), now, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func SetLastLogin(ctx context.Context, q sqlx.ExtContext, userID string, now time.Time) error {
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET last_login_at = ? WHERE id = ?`), now, userID)
	return err
}

func setPasswordHash(ctx context.Context, q sqlx.ExtContext, userID, hash string, now time.Time) error {
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`), hash, now, userID)
	return err
}

func setUserEmail(ctx context.Context, q sqlx.ExtContext, userID, email string, now time.Time) error {
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET email = ?, updated_at = ? WHERE id = ?`), email, now, userID)
	return err
}

func setUserNames(ctx context.Context, q sqlx.ExtContext, userID, firstName, lastName string, now time.Time) error {
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET first_name = ?, last_name = ?, updated_at = ? WHERE id = ?`), firstName, lastName, now, userID)
	return err
}

// touchPendingUser marks a fresh activation link for a pending account.
func touchPendingUser(ctx context.Context, q sqlx.ExtContext, userID string, now time.Time) error {
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET updated_at = ? WHERE id = ? AND is_active = FALSE`), now, userID)
	return err
}

// PurgeExpiredPendingUsers removes pending registrations whose latest
// activation link was issued before cutoff and which own no content.
func PurgeExpiredPendingUsers(ctx context.Context, q sqlx.ExtContext, cutoff time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`
DELETE FROM users
WHERE is_active = FALSE AND last_login_at IS NULL AND updated_at < ?
  AND NOT EXISTS (SELECT 1 FROM videos v WHERE v.owner_id = users.id)
  AND NOT EXISTS (SELECT 1 FROM comments c WHERE c.owner_id = users.id)
`), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IsSelfOrSuperuser guards the user detail and update pages.
func IsSelfOrSuperuser(principal models.User, targetID string) bool {
	return principal.ID == targetID || principal.IsSuperuser
}

// CanManageCatalog reports whether principal may edit subjects and lecturers.
func CanManageCatalog(principal models.User) bool {
	return principal.IsStaff || principal.IsSuperuser
}
