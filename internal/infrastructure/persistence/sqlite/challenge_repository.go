package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/pdhoward/cypressresortweb/internal/domain/challenge"
	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

type ChallengeRepository struct {
	db *sql.DB
}

func NewChallengeRepository(d *DB) *ChallengeRepository {
	return &ChallengeRepository{db: d.db}
}

func (r *ChallengeRepository) Create(ctx context.Context, c *challenge.Challenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO challenges (id, email, code_hash, created_at, expires_at, attempts, consumed)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, c.ID, c.Email, c.CodeHash, toMillis(c.CreatedAt), toMillis(c.ExpiresAt), c.Attempts)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrChallengeExists
		}
		return apperrors.Unavailable(err, "failed to store challenge")
	}
	return nil
}

func (r *ChallengeRepository) Get(ctx context.Context, id string) (*challenge.Challenge, error) {
	var (
		c          challenge.Challenge
		createdAt  int64
		expiresAt  int64
		consumed   int
		consumedAt sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, code_hash, created_at, expires_at, attempts, consumed, consumed_at
		FROM challenges WHERE id = ?
	`, id).Scan(&c.ID, &c.Email, &c.CodeHash, &createdAt, &expiresAt, &c.Attempts, &consumed, &consumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrChallengeNotFound
		}
		return nil, apperrors.Unavailable(err, "failed to get challenge")
	}

	c.CreatedAt = fromMillis(createdAt)
	c.ExpiresAt = fromMillis(expiresAt)
	c.Consumed = consumed == 1
	c.ConsumedAt = fromNullMillis(consumedAt)
	return &c, nil
}

func (r *ChallengeRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE challenges SET attempts = attempts + 1 WHERE id = ? RETURNING attempts`, id,
	).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperrors.ErrChallengeNotFound
		}
		return 0, apperrors.Unavailable(err, "failed to record attempt")
	}
	return attempts, nil
}

func (r *ChallengeRepository) Consume(ctx context.Context, id string, maxAttempts int, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE challenges SET consumed = 1, consumed_at = ?
		WHERE id = ? AND consumed = 0 AND attempts < ? AND expires_at > ?
	`, toMillis(now), id, maxAttempts, toMillis(now))
	if err != nil {
		return apperrors.Unavailable(err, "failed to consume challenge")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Unavailable(err, "failed to consume challenge")
	}
	if n == 0 {
		return apperrors.ErrAlreadyUsed
	}
	return nil
}

func (r *ChallengeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id); err != nil {
		return apperrors.Unavailable(err, "failed to delete challenge")
	}
	return nil
}

func (r *ChallengeRepository) InvalidatePending(ctx context.Context, email, keepID string, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE challenges SET consumed = 1, consumed_at = ?
		WHERE email = ? AND id <> ? AND consumed = 0 AND expires_at > ?
	`, toMillis(now), email, keepID, toMillis(now))
	if err != nil {
		return 0, apperrors.Unavailable(err, "failed to invalidate challenges")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Unavailable(err, "failed to invalidate challenges")
	}
	return int(n), nil
}

func (r *ChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, apperrors.Unavailable(err, "failed to delete expired challenges")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Unavailable(err, "failed to delete expired challenges")
	}
	return int(n), nil
}

// isUniqueViolation matches SQLITE_CONSTRAINT_PRIMARYKEY and SQLITE_CONSTRAINT_UNIQUE messages.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
