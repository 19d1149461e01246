package challenge

import (
	"time"
)

// Challenge is a pending email verification. It is keyed by the SHA-256 of
// the opaque reference returned to the caller; the code itself is never stored.
type Challenge struct {
	ID         string
	Email      string
	CodeHash   []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Attempts   int
	Consumed   bool
	ConsumedAt *time.Time
}

// NewChallenge creates a pending challenge expiring ttl after now.
func NewChallenge(id, email string, codeHash []byte, now time.Time, ttl time.Duration) *Challenge {
	now = now.UTC()
	return &Challenge{
		ID:        id,
		Email:     email,
		CodeHash:  codeHash,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the challenge is at or past its expiry.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AttemptsExhausted reports whether the failed attempt cap was reached.
func (c *Challenge) AttemptsExhausted(maxAttempts int) bool {
	return c.Attempts >= maxAttempts
}

// IsPending reports whether the challenge can still be redeemed.
func (c *Challenge) IsPending(now time.Time, maxAttempts int) bool {
	return !c.Consumed && !c.IsExpired(now) && !c.AttemptsExhausted(maxAttempts)
}
