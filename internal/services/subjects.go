package services

import (
	"context"
	"strings"
	"time"

	"videoportal-backend-go/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type SubjectForm struct {
	Name string `json:"name" validate:"required,max=30"`
}

func ListSubjects(ctx context.Context, q sqlx.ExtContext) ([]models.Subject, error) {
	items := []models.Subject{}
	err := sqlx.SelectContext(ctx, q, &items, `SELECT id, name, created_at FROM subjects ORDER BY name ASC, id ASC`)
	return items, err
}

func GetSubject(ctx context.Context, q sqlx.ExtContext, subjectID string) (models.Subject, error) {
	var subject models.Subject
	if err := sqlx.GetContext(ctx, q, &subject, q.Rebind(`SELECT id, name, created_at FROM subjects WHERE id = ?`), subjectID); err != nil {
		return models.Subject{}, notFoundOr(err, "Subject not found")
	}
	return subject, nil
}

func CreateSubject(ctx context.Context, q sqlx.ExtContext, principal models.User, form SubjectForm, now time.Time) (models.Subject, error) {
	if !CanManageCatalog(principal) {
		return models.Subject{}, ErrPermissionDenied
	}
	form.Name = strings.TrimSpace(form.Name)
	if err := validateForm(form); err != nil {
		return models.Subject{}, err
	}
	subject := models.Subject{ID: uuid.NewString(), Name: form.Name, CreatedAt: now.UTC()}
	_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO subjects (id, name, created_at) VALUES (?,?,?)`), subject.ID, subject.Name, subject.CreatedAt)
	if err != nil {
		return models.Subject{}, err
	}
	return subject, nil
}

func UpdateSubject(ctx context.Context, q sqlx.ExtContext, principal models.User, subjectID string, form SubjectForm) (models.Subject, error) {
	if !CanManageCatalog(principal) {
		return models.Subject{}, ErrPermissionDenied
	}
	form.Name = strings.TrimSpace(form.Name)
	if err := validateForm(form); err != nil {
		return models.Subject{}, err
	}
	subject, err := GetSubject(ctx, q, subjectID)
	if err != nil {
		return models.Subject{}, err
	}
	if _, err := q.ExecContext(ctx, q.Rebind(`UPDATE subjects SET name = ? WHERE id = ?`), form.Name, subjectID); err != nil {
		return models.Subject{}, err
	}
	subject.Name = form.Name
	return subject, nil
}

// DeleteSubject refuses to remove a subject that still has videos.
func DeleteSubject(ctx context.Context, q sqlx.ExtContext, principal models.User, subjectID string) error {
	if !CanManageCatalog(principal) {
		return ErrPermissionDenied
	}
	if _, err := GetSubject(ctx, q, subjectID); err != nil {
		return err
	}
	var used bool
	if err := sqlx.GetContext(ctx, q, &used, q.Rebind(`SELECT EXISTS(SELECT 1 FROM videos WHERE subject_id = ?)`), subjectID); err != nil {
		return err
	}
	if used {
		return ErrConflict("Subject is referenced by videos")
	}
	_, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM subjects WHERE id = ?`), subjectID)
	return err
}
