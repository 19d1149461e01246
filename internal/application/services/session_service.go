package services

import (
	"context"
	"time"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/application/dto"
	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/crypto"
	"github.com/pdhoward/cypressresortweb/pkg/errors"
	"github.com/pdhoward/cypressresortweb/pkg/jwt"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// MintResult carries the raw bearer token. Only its hash is stored.
type MintResult struct {
	Token   string
	Session *session.Session
}

// SessionService mints, reads and terminates sessions.
type SessionService struct {
	sessions   session.Repository
	jwtManager *jwt.Manager
	tokenGen   *crypto.TokenGenerator
	cfg        *config.Config
	log        logger.Logger
	now        func() time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(
	sessions session.Repository,
	jwtManager *jwt.Manager,
	tokenGen *crypto.TokenGenerator,
	cfg *config.Config,
	log logger.Logger,
	now func() time.Time,
) *SessionService {
	return &SessionService{
		sessions:   sessions,
		jwtManager: jwtManager.WithClock(now),
		tokenGen:   tokenGen,
		cfg:        cfg,
		log:        log.With(logger.Component("session")),
		now:        now,
	}
}

// Mint signs a session token for a verified grant and records the session.
func (s *SessionService) Mint(ctx context.Context, grant *Grant, meta session.Metadata) (*MintResult, error) {
	token, claims, err := s.jwtManager.CreateSessionToken(grant.Email, s.cfg.Session.TTL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}

	sess := session.NewSession(
		grant.Email,
		s.tokenGen.HashToken(token),
		grant.ChallengeID,
		claims.IssuedAt.Time,
		claims.ExpiresAt.Time,
		meta,
	)

	storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
	err = s.sessions.Create(storeCtx, sess)
	cancel()
	if err != nil {
		if errors.Is(err, errors.ErrSessionAlreadyExists) {
			s.log.Warn("Session already minted for challenge", logger.ChallengeID(grant.ChallengeID))
		}
		return nil, errors.Wrap(err, "failed to record session")
	}

	s.log.Info("Session started",
		logger.Email(sess.Email),
		logger.SessionID(sess.ID.String()),
		logger.ChallengeID(grant.ChallengeID),
		logger.ClientIP(meta.IPAddress),
	)

	return &MintResult{Token: token, Session: sess}, nil
}

// Terminate ends the session behind token. It never fails: problems are
// logged and the caller clears the cookie regardless.
func (s *SessionService) Terminate(ctx context.Context, token string) {
	if token == "" {
		return
	}

	log := s.log
	if claims, err := s.jwtManager.ValidateSessionToken(token); err != nil {
		log.Debug("Sign-out with unverifiable token", logger.Reason(err))
	} else {
		log = log.With(logger.Email(claims.Email))
	}

	storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
	sess, err := s.sessions.GetActiveByTokenHash(storeCtx, s.tokenGen.HashToken(token))
	cancel()
	if err != nil {
		if errors.Is(err, errors.ErrSessionNotFound) {
			log.Debug("No active session for token")
		} else {
			log.Warn("Failed to look up session for sign-out", logger.Error(err))
		}
		return
	}

	now := s.now()
	duration := sess.DurationUntil(now)

	storeCtx, cancel = storeContext(ctx, s.cfg.Store.Timeout)
	err = s.sessions.End(storeCtx, sess.ID, now, duration)
	cancel()
	if err != nil {
		if errors.Is(err, errors.ErrSessionEnded) {
			log.Debug("Session already ended", logger.SessionID(sess.ID.String()))
		} else {
			log.Warn("Failed to end session", logger.SessionID(sess.ID.String()), logger.Error(err))
		}
		return
	}

	log.Info("Session ended",
		logger.SessionID(sess.ID.String()),
		logger.Int64("duration_sec", duration),
	)
}

// Read returns the best-effort view of token for the client. An unverifiable
// token still reveals its email and expiry for display, never the token.
func (s *SessionService) Read(ctx context.Context, token string) dto.SessionView {
	if token == "" {
		return dto.SessionView{}
	}

	claims, err := s.jwtManager.ValidateSessionToken(token)
	if err == nil {
		return viewOf(&token, claims)
	}
	s.log.Debug("Session token not verified, decoding for display", logger.Reason(err))

	claims, err = s.jwtManager.DecodeUnverifiedForDisplay(token)
	if err != nil {
		return dto.SessionView{}
	}
	return viewOf(nil, claims)
}

func viewOf(token *string, claims *jwt.SessionClaims) dto.SessionView {
	view := dto.SessionView{Token: token}
	if claims.Email != "" {
		email := claims.Email
		view.Email = &email
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Unix()
		view.Exp = &exp
	}
	return view
}

// Authenticate resolves token to an active session. The token must verify and
// its session record must still be active.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, errors.ErrUnauthorized
	}
	if _, err := s.jwtManager.ValidateSessionToken(token); err != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, err.Error())
	}

	storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
	sess, err := s.sessions.GetActiveByTokenHash(storeCtx, s.tokenGen.HashToken(token))
	cancel()
	if err != nil {
		if errors.Is(err, errors.ErrSessionNotFound) {
			return nil, errors.ErrUnauthorized
		}
		return nil, err
	}

	now := s.now()
	if !sess.IsValid(now) {
		return nil, errors.ErrUnauthorized
	}

	if sess.NeedsTouch(now, s.cfg.Session.TouchInterval) {
		storeCtx, cancel := storeContext(ctx, s.cfg.Store.Timeout)
		if err := s.sessions.Touch(storeCtx, sess.ID, now); err != nil {
			s.log.Warn("Failed to touch session", logger.SessionID(sess.ID.String()), logger.Error(err))
		} else {
			sess.LastSeenAt = now.UTC()
		}
		cancel()
	}

	return sess, nil
}
