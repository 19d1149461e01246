package redis

import (
	"context"
	"encoding/hex"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pdhoward/cypressresortweb/internal/domain/challenge"
	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

// Challenges outlive their expiry briefly so late verifications read as
// expired rather than unknown.
const challengeRetention = time.Hour

// KEYS[1] challenge hash, KEYS[2] per-email index.
// ARGV[1] expire-at ms, ARGV[2] challenge ID, then field/value pairs.
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local fields = {}
for i = 3, #ARGV do
  fields[#fields + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], unpack(fields))
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('PEXPIREAT', KEYS[2], ARGV[1])
return 1
`)

// Returns -1 when missing, otherwise the new attempt count.
var incrementScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// ARGV[1] max attempts, ARGV[2] now ms. Returns -1 missing, 0 lost, 1 consumed.
var consumeScript = goredis.NewScript(`
local state = redis.call('HMGET', KEYS[1], 'consumed', 'attempts', 'expires_at')
if state[1] == false then
  return -1
end
if state[1] == '1' then
  return 0
end
if tonumber(state[2]) >= tonumber(ARGV[1]) then
  return 0
end
if tonumber(state[3]) <= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'consumed', '1', 'consumed_at', ARGV[2])
return 1
`)

// ARGV[1] now ms. Consumes a pending challenge regardless of attempts.
var invalidateScript = goredis.NewScript(`
local state = redis.call('HMGET', KEYS[1], 'consumed', 'expires_at')
if state[1] == false or state[1] == '1' then
  return 0
end
if tonumber(state[2]) <= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'consumed', '1', 'consumed_at', ARGV[1])
return 1
`)

// ChallengeRepository stores challenges as Redis hashes with native expiry.
type ChallengeRepository struct {
	client *Client
}

func NewChallengeRepository(client *Client) *ChallengeRepository {
	return &ChallengeRepository{client: client}
}

func (r *ChallengeRepository) key(id string) string {
	return r.client.Key("challenge", id)
}

func (r *ChallengeRepository) emailKey(email string) string {
	return r.client.Key("challenge_email", email)
}

// Create saves the challenge. Uses an existence check in the script to prevent collisions.
func (r *ChallengeRepository) Create(ctx context.Context, c *challenge.Challenge) error {
	expireAt := c.ExpiresAt.Add(challengeRetention).UnixMilli()

	n, err := r.client.Run(ctx, createScript,
		[]string{r.key(c.ID), r.emailKey(c.Email)},
		expireAt,
		c.ID,
		"email", c.Email,
		"code_hash", hex.EncodeToString(c.CodeHash),
		"created_at", c.CreatedAt.UnixMilli(),
		"expires_at", c.ExpiresAt.UnixMilli(),
		"attempts", c.Attempts,
		"consumed", "0",
	)
	if err != nil {
		return apperrors.Unavailable(err, "failed to store challenge")
	}
	if n == 0 {
		return apperrors.ErrChallengeExists
	}
	return nil
}

// Get retrieves a challenge. Returns ErrChallengeNotFound once Redis has purged it.
func (r *ChallengeRepository) Get(ctx context.Context, id string) (*challenge.Challenge, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id))
	if err != nil {
		return nil, apperrors.Unavailable(err, "failed to get challenge")
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrChallengeNotFound
	}
	return toChallenge(id, fields)
}

func (r *ChallengeRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	n, err := r.client.Run(ctx, incrementScript, []string{r.key(id)})
	if err != nil {
		return 0, apperrors.Unavailable(err, "failed to record attempt")
	}
	if n < 0 {
		return 0, apperrors.ErrChallengeNotFound
	}
	return int(n), nil
}

func (r *ChallengeRepository) Consume(ctx context.Context, id string, maxAttempts int, now time.Time) error {
	n, err := r.client.Run(ctx, consumeScript, []string{r.key(id)}, maxAttempts, now.UnixMilli())
	if err != nil {
		return apperrors.Unavailable(err, "failed to consume challenge")
	}
	switch n {
	case 1:
		return nil
	case -1:
		return apperrors.ErrChallengeNotFound
	default:
		return apperrors.ErrAlreadyUsed
	}
}

func (r *ChallengeRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, r.key(id)); err != nil {
		return apperrors.Unavailable(err, "failed to delete challenge")
	}
	return nil
}

// InvalidatePending consumes the other pending challenges listed in the email index.
func (r *ChallengeRepository) InvalidatePending(ctx context.Context, email, keepID string, now time.Time) (int, error) {
	ids, err := r.client.SMembers(ctx, r.emailKey(email))
	if err != nil {
		return 0, apperrors.Unavailable(err, "failed to list challenges")
	}

	count := 0
	for _, id := range ids {
		if id == keepID {
			continue
		}
		n, err := r.client.Run(ctx, invalidateScript, []string{r.key(id)}, now.UnixMilli())
		if err != nil {
			return count, apperrors.Unavailable(err, "failed to invalidate challenge")
		}
		count += int(n)
	}
	return count, nil
}

// DeleteExpired is a no-op: Redis expires challenge keys itself.
func (r *ChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func toChallenge(id string, fields map[string]string) (*challenge.Challenge, error) {
	codeHash, err := hex.DecodeString(fields["code_hash"])
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid code_hash in challenge")
	}
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid created_at in challenge")
	}
	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid expires_at in challenge")
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid attempts in challenge")
	}

	c := &challenge.Challenge{
		ID:        id,
		Email:     fields["email"],
		CodeHash:  codeHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		Attempts:  attempts,
		Consumed:  fields["consumed"] == "1",
	}
	if v, ok := fields["consumed_at"]; ok {
		consumedAt, err := parseMillis(v)
		if err != nil {
			return nil, apperrors.Wrap(err, "invalid consumed_at in challenge")
		}
		c.ConsumedAt = &consumedAt
	}
	return c, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
