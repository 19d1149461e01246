package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository handles session storage.
type Repository interface {
	// Create returns ErrSessionAlreadyExists when a session for the same
	// challenge or token hash already exists.
	Create(ctx context.Context, s *Session) error
	// GetActiveByTokenHash returns ErrSessionNotFound unless an active session matches.
	GetActiveByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	// End transitions an active session to ended. Returns ErrSessionEnded when
	// the session was not active anymore.
	End(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSec int64) error
	Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error
}
