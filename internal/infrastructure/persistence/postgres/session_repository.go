package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

const sessionColumns = `id, email, token_hash, challenge_id, status, issued_at, expires_at,
		ended_at, duration_sec, last_seen_at, ip_address, user_agent`

type SessionRepository struct {
	db Querier
}

func NewSessionRepository(db Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth_sessions (id, email, token_hash, challenge_id, status, issued_at, expires_at, last_seen_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.Email, s.TokenHash, s.ChallengeID, string(s.Status),
		s.IssuedAt, s.ExpiresAt, s.LastSeenAt, s.IPAddress, s.UserAgent)
	if err != nil {
		if isPgUniqueViolation(err) {
			return apperrors.ErrSessionAlreadyExists
		}
		return apperrors.Unavailable(err, "failed to create session")
	}
	return nil
}

func (r *SessionRepository) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM auth_sessions WHERE token_hash = $1 AND status = 'active'`, tokenHash)
	s, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, apperrors.Unavailable(err, "failed to get session by token hash")
	}
	return s, nil
}

// End closes an active session. The status guard makes repeated calls no-ops.
func (r *SessionRepository) End(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSec int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE auth_sessions
		SET status = 'ended', ended_at = $2, duration_sec = $3, last_seen_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, endedAt, durationSec)
	if err != nil {
		return apperrors.Unavailable(err, "failed to end session")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSessionEnded
	}
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE auth_sessions SET last_seen_at = $2
		WHERE id = $1 AND status = 'active' AND last_seen_at < $2
	`, id, seenAt)
	if err != nil {
		return apperrors.Unavailable(err, "failed to touch session")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		s      session.Session
		id     string
		status string
	)
	err := row.Scan(
		&id, &s.Email, &s.TokenHash, &s.ChallengeID, &status, &s.IssuedAt, &s.ExpiresAt,
		&s.EndedAt, &s.DurationSec, &s.LastSeenAt, &s.IPAddress, &s.UserAgent,
	)
	if err != nil {
		return nil, err
	}
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, apperrors.Wrap(err, "invalid session id")
	}
	s.Status = session.Status(status)
	return &s, nil
}
