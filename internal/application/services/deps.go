package services

import (
	"context"
	"time"
)

//go:generate mockgen -destination=../../mocks/mock_mailer.go -package=mocks github.com/pdhoward/cypressresortweb/internal/application/services Mailer

// Mailer delivers a one-time code to an email address.
type Mailer interface {
	Send(ctx context.Context, to, code string, expiresAt time.Time) error
}

// storeContext bounds a single store call.
func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
