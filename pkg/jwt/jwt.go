package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

var errNoSecret = errors.New("session signing secret is empty")

// Manager handles session token creation and validation.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewManager creates a new JWT manager signing with HS256.
func NewManager(secret, issuer string) *Manager {
	return &Manager{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// WithClock returns a copy of the manager that reads time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	c := *m
	c.now = now
	return &c
}

// SessionClaims represents the claims in a session bearer token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// CreateSessionToken creates a signed session token for email.
func (m *Manager) CreateSessionToken(email string, ttl time.Duration) (string, *SessionClaims, error) {
	if len(m.secret) == 0 {
		return "", nil, errNoSecret
	}
	now := m.now().UTC().Truncate(time.Second)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, apperrors.Wrap(err, "failed to sign session token")
	}

	return signed, claims, nil
}

// ValidateSessionToken verifies signature and expiry and returns the claims.
func (m *Manager) ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	if len(m.secret) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrSignatureInvalid, errNoSecret.Error())
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, apperrors.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, apperrors.ErrSignatureInvalid
		default:
			return nil, apperrors.Wrap(apperrors.ErrTokenInvalid, err.Error())
		}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, apperrors.ErrTokenInvalid
	}

	return claims, nil
}

// DecodeUnverifiedForDisplay reads claims without checking the signature.
// The result must only be shown back to the user, never trusted for access.
func (m *Manager) DecodeUnverifiedForDisplay(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTokenInvalid, err.Error())
	}
	if claims.Email == "" {
		return nil, apperrors.ErrTokenInvalid
	}
	return claims, nil
}
