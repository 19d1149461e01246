package session

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session record.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is the server-side record of one issued bearer token.
// Transitions are active -> ended only.
type Session struct {
	ID          uuid.UUID
	Email       string
	TokenHash   string
	ChallengeID string
	Status      Status
	IssuedAt    time.Time
	ExpiresAt   time.Time
	EndedAt     *time.Time
	DurationSec *int64
	LastSeenAt  time.Time
	IPAddress   string
	UserAgent   string
}

// Metadata is request context recorded with a new session.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// NewSession creates an active session issued at issuedAt.
func NewSession(
	email string,
	tokenHash string,
	challengeID string,
	issuedAt time.Time,
	expiresAt time.Time,
	meta Metadata,
) *Session {
	issuedAt = issuedAt.UTC()
	return &Session{
		ID:          uuid.New(),
		Email:       email,
		TokenHash:   tokenHash,
		ChallengeID: challengeID,
		Status:      StatusActive,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt.UTC(),
		LastSeenAt:  issuedAt,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	}
}

// IsActive returns true if the session has not ended.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// IsValid returns true if the session is active and not expired at now.
func (s *Session) IsValid(now time.Time) bool {
	return s.IsActive() && now.Before(s.ExpiresAt)
}

// DurationUntil returns whole seconds between issue and endedAt, clamped at zero.
func (s *Session) DurationUntil(endedAt time.Time) int64 {
	d := int64(endedAt.Sub(s.IssuedAt) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// NeedsTouch reports whether LastSeenAt is older than interval at now.
func (s *Session) NeedsTouch(now time.Time, interval time.Duration) bool {
	return now.Sub(s.LastSeenAt) >= interval
}

// SessionInfoForAPI is the public view of a session (no token material).
type SessionInfoForAPI struct {
	SessionID  uuid.UUID `json:"sessionId"`
	Email      string    `json:"email"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// ToAPIInfo converts the session to a public-safe struct.
func (s *Session) ToAPIInfo() SessionInfoForAPI {
	return SessionInfoForAPI{
		SessionID:  s.ID,
		Email:      s.Email,
		IssuedAt:   s.IssuedAt,
		ExpiresAt:  s.ExpiresAt,
		LastSeenAt: s.LastSeenAt,
	}
}
