package persistence

import (
	"time"

	"github.com/pdhoward/cypressresortweb/internal/domain/challenge"
	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/cache/redis"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence/memory"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence/postgres"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence/sqlite"
)

// Repositories holds the credential store implementations.
type Repositories struct {
	Challenge challenge.Repository
	Session   session.Repository
	Cooldown  challenge.Cooldown
}

// NewRepositories keeps challenges and the send cooldown in Redis and sessions in PostgreSQL.
func NewRepositories(db *postgres.DB, redisClient *redis.Client) *Repositories {
	return &Repositories{
		Challenge: redis.NewChallengeRepository(redisClient),
		Session:   postgres.NewSessionRepository(db.Pool),
		Cooldown:  redis.NewCooldown(redisClient),
	}
}

// NewSQLiteRepositories keeps everything in one SQLite file for single-node deployments.
func NewSQLiteRepositories(db *sqlite.DB, now func() time.Time) *Repositories {
	return &Repositories{
		Challenge: sqlite.NewChallengeRepository(db),
		Session:   sqlite.NewSessionRepository(db),
		Cooldown:  memory.NewCooldown(now),
	}
}

// NewMemoryRepositories keeps everything in process memory.
func NewMemoryRepositories(now func() time.Time) *Repositories {
	return &Repositories{
		Challenge: memory.NewChallengeRepository(),
		Session:   memory.NewSessionRepository(),
		Cooldown:  memory.NewCooldown(now),
	}
}
