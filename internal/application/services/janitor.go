package services

import (
	"context"
	"time"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/domain/challenge"
	"github.com/pdhoward/cypressresortweb/pkg/errors"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// Janitor purges expired challenges from stores without native expiry.
type Janitor struct {
	challenges challenge.Repository
	cfg        *config.Config
	log        logger.Logger
	now        func() time.Time
}

// NewJanitor creates a new janitor.
func NewJanitor(challenges challenge.Repository, cfg *config.Config, log logger.Logger, now func() time.Time) *Janitor {
	return &Janitor{
		challenges: challenges,
		cfg:        cfg,
		log:        log.With(logger.Component("janitor")),
		now:        now,
	}
}

// RunOnce deletes challenges that expired before now.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	storeCtx, cancel := storeContext(ctx, j.cfg.Store.Timeout)
	defer cancel()

	n, err := j.challenges.DeleteExpired(storeCtx, j.now())
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge expired challenges")
	}
	return n, nil
}

// Start runs RunOnce every interval until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	if j.cfg.Janitor.Interval <= 0 {
		j.log.Warn("Challenge janitor not started, interval must be positive",
			logger.Duration("interval", j.cfg.Janitor.Interval))
		return
	}
	go func() {
		ticker := time.NewTicker(j.cfg.Janitor.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := j.RunOnce(ctx)
				if err != nil {
					j.log.Warn("Challenge purge failed", logger.Error(err))
					continue
				}
				if n > 0 {
					j.log.Debug("Purged expired challenges", logger.Int("count", n))
				}
			}
		}
	}()
}
