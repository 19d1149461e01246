// Package memory provides process-local stores for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pdhoward/cypressresortweb/internal/domain/challenge"
	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

type ChallengeRepository struct {
	mu         sync.Mutex
	challenges map[string]*challenge.Challenge
}

func NewChallengeRepository() *ChallengeRepository {
	return &ChallengeRepository{challenges: make(map[string]*challenge.Challenge)}
}

func (r *ChallengeRepository) Create(ctx context.Context, c *challenge.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.challenges[c.ID]; ok {
		return apperrors.ErrChallengeExists
	}
	r.challenges[c.ID] = cloneChallenge(c)
	return nil
}

func (r *ChallengeRepository) Get(ctx context.Context, id string) (*challenge.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil, apperrors.ErrChallengeNotFound
	}
	return cloneChallenge(c), nil
}

func (r *ChallengeRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok {
		return 0, apperrors.ErrChallengeNotFound
	}
	c.Attempts++
	return c.Attempts, nil
}

func (r *ChallengeRepository) Consume(ctx context.Context, id string, maxAttempts int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok {
		return apperrors.ErrChallengeNotFound
	}
	if !c.IsPending(now, maxAttempts) {
		return apperrors.ErrAlreadyUsed
	}
	consumedAt := now.UTC()
	c.Consumed = true
	c.ConsumedAt = &consumedAt
	return nil
}

func (r *ChallengeRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.challenges, id)
	return nil
}

func (r *ChallengeRepository) InvalidatePending(ctx context.Context, email, keepID string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, c := range r.challenges {
		if id == keepID || c.Email != email || c.Consumed || c.IsExpired(now) {
			continue
		}
		consumedAt := now.UTC()
		c.Consumed = true
		c.ConsumedAt = &consumedAt
		n++
	}
	return n, nil
}

func (r *ChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, c := range r.challenges {
		if c.IsExpired(now) {
			delete(r.challenges, id)
			n++
		}
	}
	return n, nil
}

func cloneChallenge(c *challenge.Challenge) *challenge.Challenge {
	cp := *c
	cp.CodeHash = append([]byte(nil), c.CodeHash...)
	if c.ConsumedAt != nil {
		t := *c.ConsumedAt
		cp.ConsumedAt = &t
	}
	return &cp
}
