package services

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultConfirmationMaxAge is how long activation and email links stay valid.
const DefaultConfirmationMaxAge = 24 * time.Hour

type TokenKind string

const (
	KindActivation    TokenKind = "activation"
	KindEmailChange   TokenKind = "email_change"
	KindPasswordReset TokenKind = "password_reset"
)

// SignedPayload is the tagged content of a confirmation token. Value holds a
// user id for activation and password reset, or the requested address for an
// email change.
type SignedPayload struct {
	Kind        TokenKind
	Value       string
	Subject     string
	Fingerprint string
	IssuedAt    time.Time
}

type confirmClaims struct {
	Type        string    `json:"typ"`
	Kind        TokenKind `json:"knd"`
	Value       string    `json:"val"`
	Fingerprint string    `json:"fpr,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies URL-safe confirmation tokens signed with HS256.
// Expiry is not baked into the token; Verify compares the issuance time
// against the max age the caller allows.
type Signer struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Signer) Issue(payload SignedPayload) (string, error) {
	claims := confirmClaims{
		Type:        "confirm",
		Kind:        payload.Kind,
		Value:       payload.Value,
		Fingerprint: payload.Fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.Issuer,
			Subject:  payload.Subject,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Verify checks the signature and purpose of token and that no more than
// maxAge has passed since it was issued. It fails with ErrTokenExpired or
// ErrTokenInvalid.
func (s Signer) Verify(tokenStr string, kind TokenKind, maxAge time.Duration) (SignedPayload, error) {
	if maxAge <= 0 {
		maxAge = DefaultConfirmationMaxAge
	}
	var claims confirmClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return SignedPayload{}, ErrTokenInvalid
	}
	if claims.Type != "confirm" || claims.Kind != kind || claims.IssuedAt == nil {
		return SignedPayload{}, ErrTokenInvalid
	}
	issuedAt := claims.IssuedAt.Time.UTC()
	// iat has whole-second precision; compare at the same resolution.
	if s.now().Truncate(time.Second).Sub(issuedAt) > maxAge {
		return SignedPayload{}, ErrTokenExpired
	}
	return SignedPayload{
		Kind:        claims.Kind,
		Value:       claims.Value,
		Subject:     claims.Subject,
		Fingerprint: claims.Fingerprint,
		IssuedAt:    issuedAt,
	}, nil
}

// passwordFingerprint changes whenever the stored hash changes, which makes
// reset tokens single-use.
func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
