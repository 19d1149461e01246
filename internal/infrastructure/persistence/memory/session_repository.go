package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

type SessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[uuid.UUID]*session.Session)}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.sessions {
		if id == s.ID || existing.ChallengeID == s.ChallengeID || existing.TokenHash == s.TokenHash {
			return apperrors.ErrSessionAlreadyExists
		}
	}
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

// GetByID returns a copy of the session in any status.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *SessionRepository) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.TokenHash == tokenHash && s.IsActive() {
			return cloneSession(s), nil
		}
	}
	return nil, apperrors.ErrSessionNotFound
}

func (r *SessionRepository) End(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSec int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.IsActive() {
		return apperrors.ErrSessionEnded
	}
	endedAt = endedAt.UTC()
	s.Status = session.StatusEnded
	s.EndedAt = &endedAt
	s.DurationSec = &durationSec
	s.LastSeenAt = endedAt
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok && s.IsActive() && s.LastSeenAt.Before(seenAt) {
		s.LastSeenAt = seenAt.UTC()
	}
	return nil
}

func cloneSession(s *session.Session) *session.Session {
	cp := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	if s.DurationSec != nil {
		d := *s.DurationSec
		cp.DurationSec = &d
	}
	return &cp
}
