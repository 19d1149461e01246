package redis

import (
	"context"
	"time"

	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
)

// Cooldown limits code sends per email with a SETNX marker that expires after the window.
type Cooldown struct {
	client *Client
}

func NewCooldown(client *Client) *Cooldown {
	return &Cooldown{client: client}
}

func (c *Cooldown) Acquire(ctx context.Context, email string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	ok, err := c.client.SetNX(ctx, c.client.Key("send_cooldown", email), 1, window)
	if err != nil {
		return false, apperrors.Unavailable(err, "failed to check send cooldown")
	}
	return ok, nil
}

func (c *Cooldown) Release(ctx context.Context, email string) error {
	if err := c.client.Delete(ctx, c.client.Key("send_cooldown", email)); err != nil {
		return apperrors.Unavailable(err, "failed to release send cooldown")
	}
	return nil
}
