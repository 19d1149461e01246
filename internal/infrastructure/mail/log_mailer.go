package mail

import (
	"context"
	"time"

	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// LogMailer writes codes to the log instead of sending them. Development only.
type LogMailer struct {
	log logger.Logger
}

func NewLogMailer(log logger.Logger) *LogMailer {
	return &LogMailer{log: log.With(logger.Component("mailer"))}
}

func (m *LogMailer) Send(ctx context.Context, to, code string, expiresAt time.Time) error {
	m.log.Info("Code email (log driver, not delivered)",
		logger.Email(to),
		logger.String("code", code),
		logger.Time("expires_at", expiresAt),
	)
	return nil
}
