package services

import (
	"context"
	"strings"
	"time"

	"videoportal-backend-go/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LecturerForm allows an empty email; comments on such lecturers go to the
// fallback address.
type LecturerForm struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"omitempty,email,max=100"`
}

func (f *LecturerForm) clean() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = normalizeEmail(f.Email)
}

func ListLecturers(ctx context.Context, q sqlx.ExtContext) ([]models.Lecturer, error) {
	items := []models.Lecturer{}
	err := sqlx.SelectContext(ctx, q, &items, `SELECT id, name, email, created_at FROM lecturers ORDER BY name ASC, id ASC`)
	return items, err
}

func GetLecturer(ctx context.Context, q sqlx.ExtContext, lecturerID string) (models.Lecturer, error) {
	var lecturer models.Lecturer
	if err := sqlx.GetContext(ctx, q, &lecturer, q.Rebind(`SELECT id, name, email, created_at FROM lecturers WHERE id = ?`), lecturerID); err != nil {
		return models.Lecturer{}, notFoundOr(err, "Lecturer not found")
	}
	return lecturer, nil
}

func CreateLecturer(ctx context.Context, q sqlx.ExtContext, principal models.User, form LecturerForm, now time.Time) (models.Lecturer, error) {
	if !CanManageCatalog(principal) {
		return models.Lecturer{}, ErrPermissionDenied
	}
	form.clean()
	if err := validateForm(form); err != nil {
		return models.Lecturer{}, err
	}
	lecturer := models.Lecturer{ID: uuid.NewString(), Name: form.Name, Email: form.Email, CreatedAt: now.UTC()}
	_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO lecturers (id, name, email, created_at) VALUES (?,?,?,?)`),
		lecturer.ID, lecturer.Name, lecturer.Email, lecturer.CreatedAt)
	if err != nil {
		return models.Lecturer{}, err
	}
	return lecturer, nil
}

func UpdateLecturer(ctx context.Context, q sqlx.ExtContext, principal models.User, lecturerID string, form LecturerForm) (models.Lecturer, error) {
	if !CanManageCatalog(principal) {
		return models.Lecturer{}, ErrPermissionDenied
	}
	form.clean()
	if err := validateForm(form); err != nil {
		return models.Lecturer{}, err
	}
	lecturer, err := GetLecturer(ctx, q, lecturerID)
	if err != nil {
		return models.Lecturer{}, err
	}
	if _, err := q.ExecContext(ctx, q.Rebind(`UPDATE lecturers SET name = ?, email = ? WHERE id = ?`), form.Name, form.Email, lecturerID); err != nil {
		return models.Lecturer{}, err
	}
	lecturer.Name = form.Name
	lecturer.Email = form.Email
	return lecturer, nil
}

// DeleteLecturer refuses to remove a lecturer named on any comment.
func DeleteLecturer(ctx context.Context, q sqlx.ExtContext, principal models.User, lecturerID string) error {
	if !CanManageCatalog(principal) {
		return ErrPermissionDenied
	}
	if _, err := GetLecturer(ctx, q, lecturerID); err != nil {
		return err
	}
	var used bool
	if err := sqlx.GetContext(ctx, q, &used, q.Rebind(`SELECT EXISTS(SELECT 1 FROM comments WHERE lecturer_id = ?)`), lecturerID); err != nil {
		return err
	}
	if used {
		return ErrConflict("Lecturer is referenced by comments")
	}
	_, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM lecturers WHERE id = ?`), lecturerID)
	return err
}
