package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

const sessionColumns = `id, email, token_hash, challenge_id, status, issued_at, expires_at,
	ended_at, duration_sec, last_seen_at, ip_address, user_agent`

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(d *DB) *SessionRepository {
	return &SessionRepository{db: d.db}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, email, token_hash, challenge_id, status, issued_at, expires_at, last_seen_at, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID.String(), s.Email, s.TokenHash, s.ChallengeID, string(s.Status),
		toMillis(s.IssuedAt), toMillis(s.ExpiresAt), toMillis(s.LastSeenAt), s.IPAddress, s.UserAgent)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrSessionAlreadyExists
		}
		return apperrors.Unavailable(err, "failed to create session")
	}
	return nil
}

func (r *SessionRepository) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = ? AND status = 'active'`, tokenHash)
	return r.scan(row, "failed to get session by token hash")
}

func (r *SessionRepository) End(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSec int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'ended', ended_at = ?, duration_sec = ?, last_seen_at = ?
		WHERE id = ? AND status = 'active'
	`, toMillis(endedAt), durationSec, toMillis(endedAt), id.String())
	if err != nil {
		return apperrors.Unavailable(err, "failed to end session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Unavailable(err, "failed to end session")
	}
	if n == 0 {
		return apperrors.ErrSessionEnded
	}
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET last_seen_at = ?
		WHERE id = ? AND status = 'active' AND last_seen_at < ?
	`, toMillis(seenAt), id.String(), toMillis(seenAt))
	if err != nil {
		return apperrors.Unavailable(err, "failed to touch session")
	}
	return nil
}

func (r *SessionRepository) scan(row *sql.Row, msg string) (*session.Session, error) {
	var (
		s          session.Session
		id         string
		status     string
		issuedAt   int64
		expiresAt  int64
		endedAt    sql.NullInt64
		duration   sql.NullInt64
		lastSeenAt int64
	)
	err := row.Scan(&id, &s.Email, &s.TokenHash, &s.ChallengeID, &status, &issuedAt, &expiresAt,
		&endedAt, &duration, &lastSeenAt, &s.IPAddress, &s.UserAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, apperrors.Unavailable(err, msg)
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, apperrors.Wrap(err, "invalid session id")
	}
	s.Status = session.Status(status)
	s.IssuedAt = fromMillis(issuedAt)
	s.ExpiresAt = fromMillis(expiresAt)
	s.EndedAt = fromNullMillis(endedAt)
	if duration.Valid {
		d := duration.Int64
		s.DurationSec = &d
	}
	s.LastSeenAt = fromMillis(lastSeenAt)
	return &s, nil
}
