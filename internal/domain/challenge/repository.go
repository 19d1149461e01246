package challenge

import (
	"context"
	"time"
)

// Repository handles challenge storage. Implementations must make
// RecordFailedAttempt and Consume atomic with respect to concurrent callers.
type Repository interface {
	// Create stores a new challenge. Returns ErrChallengeExists on ID collision.
	Create(ctx context.Context, c *Challenge) error
	// Get returns ErrChallengeNotFound when the challenge is absent or already purged.
	Get(ctx context.Context, id string) (*Challenge, error)
	// RecordFailedAttempt increments the attempt counter and returns the new value.
	RecordFailedAttempt(ctx context.Context, id string) (int, error)
	// Consume marks the challenge used if it is unconsumed, unexpired at now and
	// below maxAttempts. Returns ErrAlreadyUsed when another caller won or the
	// conditions no longer hold.
	Consume(ctx context.Context, id string, maxAttempts int, now time.Time) error
	// Delete removes a challenge. Deleting a missing challenge is not an error.
	Delete(ctx context.Context, id string) error
	// InvalidatePending consumes every pending challenge for email except keepID.
	InvalidatePending(ctx context.Context, email, keepID string, now time.Time) (int, error)
	// DeleteExpired purges challenges that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

//go:generate mockgen -destination=../../mocks/mock_cooldown.go -package=mocks github.com/pdhoward/cypressresortweb/internal/domain/challenge Cooldown

// Cooldown gates how often a code can be sent to one email.
type Cooldown interface {
	// Acquire returns false when a send for email happened within window.
	Acquire(ctx context.Context, email string, window time.Duration) (bool, error)
	// Release clears the window for email so an undelivered send can be retried.
	Release(ctx context.Context, email string) error
}
