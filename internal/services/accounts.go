package services

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	"videoportal-backend-go/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type RegisterForm struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,max=128,notnumeric"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type EmailChangeForm struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type PasswordChangeForm struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128,notnumeric"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=NewPassword"`
}

type PasswordResetForm struct {
	Email string `json:"email" validate:"required,email"`
}

type SetPasswordForm struct {
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128,notnumeric"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=NewPassword"`
}

type ProfileForm struct {
	FirstName string `json:"firstName" validate:"max=30"`
	LastName  string `json:"lastName" validate:"max=150"`
}

// Accounts runs registration, login and the mailed confirmation flows.
type Accounts struct {
	DB            *sqlx.DB
	Tokens        TokenService
	Signer        Signer
	Mailer        Mailer
	BaseURL       string
	ActivationTTL time.Duration
	Now           func() time.Time
}

type confirmationMail struct {
	Email    string
	NewEmail string
	Link     string
	ValidFor string
}

func (a *Accounts) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

func (a *Accounts) maxAge() time.Duration {
	if a.ActivationTTL > 0 {
		return a.ActivationTTL
	}
	return DefaultConfirmationMaxAge
}

func (a *Accounts) link(path, token string) string {
	return a.BaseURL + path + url.PathEscape(token)
}

// Register creates a pending account and mails its activation link. A
// previous unconfirmed registration for the same address is discarded.
func (a *Accounts) Register(ctx context.Context, form RegisterForm) (models.User, error) {
	form.Email = normalizeEmail(form.Email)
	if err := validateForm(form); err != nil {
		return models.User{}, err
	}
	hash, err := a.Tokens.HashPassword(form.Password)
	if err != nil {
		return models.User{}, WrapError(err, "hash password")
	}
	now := a.now()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        form.Email,
		PasswordHash: hash,
		IsActive:     false,
		DateJoined:   now,
		UpdatedAt:    now,
	}

	tx, err := a.DB.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback()
	taken, err := activeUserExists(ctx, tx, form.Email)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, fieldError("email", "User with this email address already exists.")
	}
	if _, err := purgePendingUsers(ctx, tx, form.Email); err != nil {
		return models.User{}, WrapError(err, "purge pending users")
	}
	if err := insertUser(ctx, tx, user); err != nil {
		return models.User{}, WrapError(err, "insert user")
	}
	if err := tx.Commit(); err != nil {
		return models.User{}, err
	}

	if err := a.sendActivation(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// ResendActivation mails a fresh activation link for a pending account.
func (a *Accounts) ResendActivation(ctx context.Context, email string) error {
	user, err := GetUserByEmail(ctx, a.DB, email)
	if err != nil {
		return err
	}
	if user.IsActive {
		return ErrAlreadyActive
	}
	if err := touchPendingUser(ctx, a.DB, user.ID, a.now()); err != nil {
		return err
	}
	return a.sendActivation(ctx, user)
}

func (a *Accounts) sendActivation(ctx context.Context, user models.User) error {
	token, err := a.Signer.Issue(SignedPayload{Kind: KindActivation, Value: user.ID})
	if err != nil {
		return WrapError(err, "issue activation token")
	}
	return sendTemplate(ctx, a.Mailer, mailActivation, []string{user.Email}, confirmationMail{
		Email:    user.Email,
		Link:     a.link("/api/user_create/complete/", token),
		ValidFor: a.maxAge().String(),
	})
}

// ConfirmActivation activates the pending account named by token.
func (a *Accounts) ConfirmActivation(ctx context.Context, token string) (models.User, error) {
	payload, err := a.Signer.Verify(token, KindActivation, a.maxAge())
	if err != nil {
		return models.User{}, err
	}
	user, err := GetUser(ctx, a.DB, payload.Value)
	if err != nil {
		if errors.Is(err, ServiceError{Code: CodeNotFound}) {
			return models.User{}, ErrBadRequest("Unknown account")
		}
		return models.User{}, err
	}
	if user.IsActive {
		return models.User{}, ErrAlreadyActive
	}
	now := a.now()
	activated, err := activateUser(ctx, a.DB, user.ID, now)
	if err != nil {
		return models.User{}, WrapError(err, "activate user")
	}
	if !activated {
		return models.User{}, ErrAlreadyActive
	}
	user.IsActive = true
	user.UpdatedAt = now
	return user, nil
}

// Login checks credentials of an active account and issues an access token.
func (a *Accounts) Login(ctx context.Context, form LoginForm) (string, int64, models.User, error) {
	form.Email = normalizeEmail(form.Email)
	if err := validateForm(form); err != nil {
		return "", 0, models.User{}, ErrAuthFailed
	}
	user, err := GetUserByEmail(ctx, a.DB, form.Email)
	if err != nil {
		if _, ok := AsServiceError(err); ok {
			return "", 0, models.User{}, ErrAuthFailed
		}
		return "", 0, models.User{}, err
	}
	if !user.IsActive || !a.Tokens.VerifyPassword(form.Password, user.PasswordHash) {
		return "", 0, models.User{}, ErrAuthFailed
	}
	access, exp, err := a.Tokens.CreateAccessToken(user)
	if err != nil {
		return "", 0, models.User{}, WrapError(err, "create access token")
	}
	now := a.now()
	if err := SetLastLogin(ctx, a.DB, user.ID, now); err != nil {
		return "", 0, models.User{}, err
	}
	user.LastLoginAt = &now
	return access, exp, user, nil
}

// UpdateProfile edits the names of target on behalf of principal.
func (a *Accounts) UpdateProfile(ctx context.Context, principal models.User, targetID string, form ProfileForm) (models.User, error) {
	if !IsSelfOrSuperuser(principal, targetID) {
		return models.User{}, ErrPermissionDenied
	}
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	if err := validateForm(form); err != nil {
		return models.User{}, err
	}
	if _, err := GetUser(ctx, a.DB, targetID); err != nil {
		return models.User{}, err
	}
	if err := setUserNames(ctx, a.DB, targetID, form.FirstName, form.LastName, a.now()); err != nil {
		return models.User{}, err
	}
	return GetUser(ctx, a.DB, targetID)
}

func (a *Accounts) ChangePassword(ctx context.Context, principal models.User, form PasswordChangeForm) error {
	if err := validateForm(form); err != nil {
		return err
	}
	user, err := GetUser(ctx, a.DB, principal.ID)
	if err != nil {
		return err
	}
	if !a.Tokens.VerifyPassword(form.OldPassword, user.PasswordHash) {
		return fieldError("oldPassword", "Your old password was entered incorrectly.")
	}
	hash, err := a.Tokens.HashPassword(form.NewPassword)
	if err != nil {
		return WrapError(err, "hash password")
	}
	return setPasswordHash(ctx, a.DB, user.ID, hash, a.now())
}

// RequestPasswordReset mails a reset link to an active account. Unknown
// addresses succeed silently so the endpoint does not reveal accounts.
func (a *Accounts) RequestPasswordReset(ctx context.Context, form PasswordResetForm) error {
	form.Email = normalizeEmail(form.Email)
	if err := validateForm(form); err != nil {
		return err
	}
	user, err := GetUserByEmail(ctx, a.DB, form.Email)
	if err != nil {
		if _, ok := AsServiceError(err); ok {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}
	token, err := a.Signer.Issue(SignedPayload{
		Kind:        KindPasswordReset,
		Value:       user.ID,
		Fingerprint: passwordFingerprint(user.PasswordHash),
	})
	if err != nil {
		return WrapError(err, "issue reset token")
	}
	return sendTemplate(ctx, a.Mailer, mailPasswordReset, []string{user.Email}, confirmationMail{
		Email:    user.Email,
		Link:     a.link("/api/password_reset/confirm/", token),
		ValidFor: a.maxAge().String(),
	})
}

// ConfirmPasswordReset sets a new password. The token stops working once the
// password has changed.
func (a *Accounts) ConfirmPasswordReset(ctx context.Context, token string, form SetPasswordForm) error {
	payload, err := a.Signer.Verify(token, KindPasswordReset, a.maxAge())
	if err != nil {
		return err
	}
	if err := validateForm(form); err != nil {
		return err
	}
	user, err := GetUser(ctx, a.DB, payload.Value)
	if err != nil {
		if _, ok := AsServiceError(err); ok {
			return ErrTokenInvalid
		}
		return err
	}
	if !user.IsActive || passwordFingerprint(user.PasswordHash) != payload.Fingerprint {
		return ErrTokenInvalid
	}
	hash, err := a.Tokens.HashPassword(form.NewPassword)
	if err != nil {
		return WrapError(err, "hash password")
	}
	return setPasswordHash(ctx, a.DB, user.ID, hash, a.now())
}

// RequestEmailChange mails a confirmation link to the new address.
func (a *Accounts) RequestEmailChange(ctx context.Context, principal models.User, form EmailChangeForm) error {
	form.Email = normalizeEmail(form.Email)
	if err := validateForm(form); err != nil {
		return err
	}
	taken, err := activeUserExists(ctx, a.DB, form.Email)
	if err != nil {
		return err
	}
	if taken {
		return fieldError("email", "User with this email address already exists.")
	}
	if _, err := purgePendingUsers(ctx, a.DB, form.Email); err != nil {
		return WrapError(err, "purge pending users")
	}
	token, err := a.Signer.Issue(SignedPayload{Kind: KindEmailChange, Value: form.Email, Subject: principal.ID})
	if err != nil {
		return WrapError(err, "issue email change token")
	}
	return sendTemplate(ctx, a.Mailer, mailEmailChange, []string{form.Email}, confirmationMail{
		Email:    principal.Email,
		NewEmail: form.Email,
		Link:     a.link("/api/email/change/complete/", token),
		ValidFor: a.maxAge().String(),
	})
}

// ConfirmEmailChange applies the address carried by token to the account that
// requested it, which must be the signed-in account.
func (a *Accounts) ConfirmEmailChange(ctx context.Context, principal models.User, token string) (models.User, error) {
	payload, err := a.Signer.Verify(token, KindEmailChange, a.maxAge())
	if err != nil {
		return models.User{}, err
	}
	if payload.Subject != principal.ID {
		return models.User{}, ErrPermissionDenied
	}
	newEmail := normalizeEmail(payload.Value)

	tx, err := a.DB.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback()
	if _, err := purgePendingUsers(ctx, tx, newEmail); err != nil {
		return models.User{}, WrapError(err, "purge pending users")
	}
	var holder string
	err = sqlx.GetContext(ctx, tx, &holder, tx.Rebind(`SELECT id FROM users WHERE email = ?`), newEmail)
	switch {
	case err == nil && holder != principal.ID:
		return models.User{}, ErrConflict("User with this email address already exists.")
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return models.User{}, err
	}
	now := a.now()
	if err := setUserEmail(ctx, tx, principal.ID, newEmail, now); err != nil {
		return models.User{}, WrapError(err, "update email")
	}
	if err := tx.Commit(); err != nil {
		return models.User{}, err
	}
	return GetUser(ctx, a.DB, principal.ID)
}

// CreateSuperuser creates an active staff superuser account.
func (a *Accounts) CreateSuperuser(ctx context.Context, email, password string) (models.User, error) {
	email = normalizeEmail(email)
	form := RegisterForm{Email: email, Password: password, PasswordConfirm: password}
	if err := validateForm(form); err != nil {
		return models.User{}, err
	}
	hash, err := a.Tokens.HashPassword(password)
	if err != nil {
		return models.User{}, WrapError(err, "hash password")
	}
	now := a.now()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
		DateJoined:   now,
		UpdatedAt:    now,
	}
	tx, err := a.DB.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback()
	taken, err := activeUserExists(ctx, tx, email)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, ErrConflict("User with this email address already exists.")
	}
	if _, err := purgePendingUsers(ctx, tx, email); err != nil {
		return models.User{}, err
	}
	if err := insertUser(ctx, tx, user); err != nil {
		return models.User{}, WrapError(err, "insert user")
	}
	return user, tx.Commit()
}
