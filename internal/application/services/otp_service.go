package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/application/dto"
	"github.com/pdhoward/cypressresortweb/internal/domain/challenge"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/crypto"
	"github.com/pdhoward/cypressresortweb/pkg/errors"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// Grant is proof that an email address was verified by one challenge.
type Grant struct {
	ChallengeID string
	Email       string
	VerifiedAt  time.Time
}

// OTPService issues and verifies emailed one-time codes.
type OTPService struct {
	challenges challenge.Repository
	cooldown   challenge.Cooldown
	mailer     Mailer
	tokenGen   *crypto.TokenGenerator
	hasher     *crypto.CodeHasher
	cfg        *config.Config
	log        logger.Logger
	now        func() time.Time
}

// NewOTPService creates a new OTP service.
func NewOTPService(
	challenges challenge.Repository,
	cooldown challenge.Cooldown,
	mailer Mailer,
	tokenGen *crypto.TokenGenerator,
	hasher *crypto.CodeHasher,
	cfg *config.Config,
	log logger.Logger,
	now func() time.Time,
) *OTPService {
	return &OTPService{
		challenges: challenges,
		cooldown:   cooldown,
		mailer:     mailer,
		tokenGen:   tokenGen,
		hasher:     hasher,
		cfg:        cfg,
		log:        log.With(logger.Component("otp")),
		now:        now,
	}
}

// IssueChallenge creates a challenge for email and mails its code.
func (s *OTPService) IssueChallenge(ctx context.Context, email string) (*dto.SendCodeResponse, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	cooling := s.cooldown != nil && s.cfg.OTP.ResendCooldown > 0
	if cooling {
		storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
		ok, err := s.cooldown.Acquire(storeCtx, email, s.cfg.OTP.ResendCooldown)
		cancel()
		if err != nil {
			return nil, err
		}
		if !ok {
			s.log.Info("Code requested during cooldown", logger.Email(email))
			return nil, errors.ErrResendCooldown
		}
	}

	code, err := s.tokenGen.GenerateCode()
	if err != nil {
		s.releaseCooldown(ctx, email, cooling)
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}
	ref, err := s.tokenGen.GenerateChallengeRef()
	if err != nil {
		s.releaseCooldown(ctx, email, cooling)
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}

	now := s.now()
	id := s.tokenGen.HashToken(ref)
	c := challenge.NewChallenge(id, email, s.hasher.Hash(id, email, code), now, s.cfg.OTP.TTL)

	storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
	err = s.challenges.Create(storeCtx, c)
	cancel()
	if err != nil {
		s.releaseCooldown(ctx, email, cooling)
		return nil, errors.Wrap(err, "failed to store challenge")
	}

	if err := s.mailer.Send(ctx, email, code, c.ExpiresAt); err != nil {
		s.log.Warn("Code delivery failed",
			logger.Email(email),
			logger.ChallengeID(id),
			logger.Error(err),
		)
		s.rollback(ctx, id)
		s.releaseCooldown(ctx, email, cooling)
		return nil, fmt.Errorf("%w: %w", errors.ErrDeliveryFailed, err)
	}

	if s.cfg.OTP.SingleActivePerEmail {
		storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
		n, err := s.challenges.InvalidatePending(storeCtx, email, id, now)
		cancel()
		if err != nil {
			s.log.Warn("Failed to invalidate earlier challenges", logger.Email(email), logger.Error(err))
		} else if n > 0 {
			s.log.Debug("Invalidated earlier challenges", logger.Email(email), logger.Int("count", n))
		}
	}

	s.log.Info("Challenge issued",
		logger.Email(email),
		logger.ChallengeID(id),
		logger.Time("expires_at", c.ExpiresAt),
	)

	return &dto.SendCodeResponse{ChallengeRef: ref, ExpiresAt: c.ExpiresAt}, nil
}

func (s *OTPService) rollback(ctx context.Context, id string) {
	storeCtx, cancel := storeContext(context.WithoutCancel(ctx), s.cfg.Store.Timeout)
	defer cancel()
	if err := s.challenges.Delete(storeCtx, id); err != nil {
		s.log.Warn("Failed to delete undelivered challenge", logger.ChallengeID(id), logger.Error(err))
	}
}

// releaseCooldown lets the caller retry a send that never reached the mailbox.
func (s *OTPService) releaseCooldown(ctx context.Context, email string, acquired bool) {
	if !acquired {
		return
	}
	storeCtx, cancel := storeContext(context.WithoutCancel(ctx), s.cfg.Store.Timeout)
	defer cancel()
	if err := s.cooldown.Release(storeCtx, email); err != nil {
		s.log.Warn("Failed to release send cooldown", logger.Email(email), logger.Error(err))
	}
}

// Verify redeems code for the challenge behind challengeRef. Checks run in a
// fixed order and each failure is a distinct error; callers collapse all but
// ErrTooManyAttempts with errors.IsInvalidCode.
func (s *OTPService) Verify(ctx context.Context, email, code, challengeRef string) (*Grant, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if !crypto.IsWellFormedCode(code) {
		return nil, errors.ErrInvalidCode
	}
	if challengeRef == "" {
		return nil, s.fail(email, "", errors.ErrChallengeNotFound)
	}

	id := s.tokenGen.HashToken(challengeRef)
	maxAttempts := s.cfg.OTP.MaxAttempts

	storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
	c, err := s.challenges.Get(storeCtx, id)
	cancel()
	if err != nil {
		return nil, s.fail(email, id, err)
	}

	now := s.now()
	switch {
	case c.Consumed:
		return nil, s.fail(email, id, errors.ErrAlreadyUsed)
	case c.IsExpired(now):
		return nil, s.fail(email, id, errors.ErrChallengeExpired)
	case c.AttemptsExhausted(maxAttempts):
		return nil, s.fail(email, id, errors.ErrTooManyAttempts)
	case c.Email != email:
		return nil, s.fail(email, id, errors.ErrEmailMismatch)
	}

	if !s.hasher.Verify(c.CodeHash, id, email, code) {
		storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
		attempts, err := s.challenges.RecordFailedAttempt(storeCtx, id)
		cancel()
		if err != nil {
			return nil, s.fail(email, id, err)
		}
		if attempts >= maxAttempts {
			s.log.Info("Challenge locked after failed attempts", logger.ChallengeID(id), logger.Int("attempts", attempts))
		}
		return nil, s.fail(email, id, errors.ErrCodeMismatch)
	}

	storeCtx, cancel = storeContext(ctx, s.cfg.Store.Timeout)
	err = s.challenges.Consume(storeCtx, id, maxAttempts, now)
	cancel()
	if err != nil {
		if errors.Is(err, errors.ErrAlreadyUsed) {
			err = s.classifyLostConsume(ctx, id, now)
		}
		return nil, s.fail(email, id, err)
	}

	s.log.Info("Challenge verified", logger.Email(email), logger.ChallengeID(id))
	return &Grant{ChallengeID: id, Email: email, VerifiedAt: now}, nil
}

// classifyLostConsume re-reads a challenge whose conditional consume failed
// so the log reason reflects what changed in between.
func (s *OTPService) classifyLostConsume(ctx context.Context, id string, now time.Time) error {
	storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
	defer cancel()

	c, err := s.challenges.Get(storeCtx, id)
	switch {
	case err != nil:
		return errors.ErrAlreadyUsed
	case c.Consumed:
		return errors.ErrAlreadyUsed
	case c.IsExpired(now):
		return errors.ErrChallengeExpired
	case c.AttemptsExhausted(s.cfg.OTP.MaxAttempts):
		return errors.ErrTooManyAttempts
	default:
		return errors.ErrAlreadyUsed
	}
}

func (s *OTPService) fail(email, id string, err error) error {
	s.log.Info("Challenge verification failed",
		logger.Email(email),
		logger.ChallengeID(id),
		logger.Reason(err),
	)
	return err
}
