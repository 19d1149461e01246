package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/domain/challenge"
	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(&config.SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestChallengeRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewChallengeRepository(db)
	ctx := context.Background()

	c := challenge.NewChallenge("c1", "guest@cypress.test", []byte{1, 2, 3}, t0, 10*time.Minute)
	require.NoError(t, repo.Create(ctx, c))
	assert.ErrorIs(t, repo.Create(ctx, c), apperrors.ErrChallengeExists)

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.CodeHash, got.CodeHash)
	assert.True(t, got.ExpiresAt.Equal(c.ExpiresAt))
	assert.False(t, got.Consumed)

	n, err := repo.RecordFailedAttempt(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.Consume(ctx, "c1", 5, t0.Add(time.Minute)))
	assert.ErrorIs(t, repo.Consume(ctx, "c1", 5, t0.Add(time.Minute)), apperrors.ErrAlreadyUsed)

	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.Consumed)
	require.NotNil(t, got.ConsumedAt)
	assert.True(t, got.ConsumedAt.Equal(t0.Add(time.Minute)))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrChallengeNotFound)
	_, err = repo.RecordFailedAttempt(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrChallengeNotFound)
}

func TestChallengeRepository_ConsumeConditions(t *testing.T) {
	db := openTestDB(t)
	repo := NewChallengeRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, challenge.NewChallenge("exp", "a@cypress.test", []byte{1}, t0, time.Minute)))
	assert.ErrorIs(t, repo.Consume(ctx, "exp", 5, t0.Add(time.Minute)), apperrors.ErrAlreadyUsed)

	require.NoError(t, repo.Create(ctx, challenge.NewChallenge("cap", "a@cypress.test", []byte{1}, t0, time.Minute)))
	for i := 0; i < 2; i++ {
		_, err := repo.RecordFailedAttempt(ctx, "cap")
		require.NoError(t, err)
	}
	assert.ErrorIs(t, repo.Consume(ctx, "cap", 2, t0), apperrors.ErrAlreadyUsed)
}

func TestChallengeRepository_ConsumeRace(t *testing.T) {
	db := openTestDB(t)
	repo := NewChallengeRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, challenge.NewChallenge("race", "a@cypress.test", []byte{1}, t0, time.Minute)))

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Consume(ctx, "race", 5, t0); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestChallengeRepository_InvalidateAndPurge(t *testing.T) {
	db := openTestDB(t)
	repo := NewChallengeRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, challenge.NewChallenge("a", "guest@cypress.test", []byte{1}, t0, 10*time.Minute)))
	require.NoError(t, repo.Create(ctx, challenge.NewChallenge("b", "guest@cypress.test", []byte{1}, t0, 10*time.Minute)))
	require.NoError(t, repo.Create(ctx, challenge.NewChallenge("other", "other@cypress.test", []byte{1}, t0, 10*time.Minute)))
	require.NoError(t, repo.Create(ctx, challenge.NewChallenge("old", "guest@cypress.test", []byte{1}, t0.Add(-time.Hour), 10*time.Minute)))

	n, err := repo.InvalidatePending(ctx, "guest@cypress.test", "b", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.Consumed)
	other, err := repo.Get(ctx, "other")
	require.NoError(t, err)
	assert.False(t, other.Consumed)

	purged, err := repo.DeleteExpired(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	_, err = repo.Get(ctx, "old")
	assert.ErrorIs(t, err, apperrors.ErrChallengeNotFound)

	require.NoError(t, repo.Delete(ctx, "a"))
	_, err = repo.Get(ctx, "a")
	assert.ErrorIs(t, err, apperrors.ErrChallengeNotFound)
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s := session.NewSession("guest@cypress.test", "hash-1", "c1", t0, t0.Add(7*24*time.Hour),
		session.Metadata{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, repo.Create(ctx, s))

	dup := session.NewSession("guest@cypress.test", "hash-2", "c1", t0, t0.Add(time.Hour), session.Metadata{})
	assert.ErrorIs(t, repo.Create(ctx, dup), apperrors.ErrSessionAlreadyExists)

	got, err := repo.GetActiveByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "10.0.0.1", got.IPAddress)
	assert.True(t, got.IsActive())

	require.NoError(t, repo.Touch(ctx, s.ID, t0.Add(10*time.Minute)))

	endedAt := t0.Add(90 * time.Second)
	require.NoError(t, repo.End(ctx, s.ID, endedAt, 90))
	assert.ErrorIs(t, repo.End(ctx, s.ID, endedAt.Add(time.Minute), 150), apperrors.ErrSessionEnded)

	_, err = repo.GetActiveByTokenHash(ctx, "hash-1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	var (
		status   string
		endedMs  int64
		duration int64
	)
	require.NoError(t, db.db.QueryRowContext(ctx,
		`SELECT status, ended_at, duration_sec FROM sessions WHERE id = ?`, s.ID.String()).
		Scan(&status, &endedMs, &duration))
	assert.Equal(t, string(session.StatusEnded), status)
	assert.Equal(t, toMillis(endedAt), endedMs)
	assert.Equal(t, int64(90), duration)
}

func TestDB_Health(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Health(context.Background()))
}
