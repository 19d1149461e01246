package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// SMTPMailer delivers codes over SMTP with mandatory STARTTLS.
type SMTPMailer struct {
	cfg    config.MailConfig
	client *gomail.Client
	log    logger.Logger
	now    func() time.Time
}

// NewSMTPMailer creates a mailer for the configured relay.
func NewSMTPMailer(cfg config.MailConfig, log logger.Logger) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPMailer{
		cfg:    cfg,
		client: client,
		log:    log.With(logger.Component("mailer")),
		now:    time.Now,
	}, nil
}

// Send emails code to the recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, code string, expiresAt time.Time) error {
	msg, err := m.compose(to, code, expiresAt)
	if err != nil {
		return err
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send code email: %w", err)
	}

	m.log.Debug("Code email sent", logger.Email(to))
	return nil
}

func (m *SMTPMailer) compose(to, code string, expiresAt time.Time) (*gomail.Msg, error) {
	body, err := RenderCodeEmail(code, expiresAt, m.now())
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(m.cfg.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, body.Text)
	msg.AddAlternativeString(gomail.TypeTextHTML, body.HTML)
	return msg, nil
}
