package auth

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/basestub/basestub/pkg/observability"
)

// RefreshTokenRetention is how long a revoked refresh token is kept
// around before the scheduled sweep deletes it.
const RefreshTokenRetention = 30 * 24 * time.Hour

// CleanupScheduler runs Store.CleanupExpiredRefreshTokens on a cron
// schedule, the same ticker-goroutine-with-recovery shape as
// pkg/storage/postgres's connection health-check routine, generalized
// to cron syntax so the sweep cadence is configurable.
type CleanupScheduler struct {
	store  *Store
	cron   *cron.Cron
	logger *observability.Logger
}

// NewCleanupScheduler builds a scheduler; call Start to begin running.
func NewCleanupScheduler(store *Store, logger *observability.Logger) *CleanupScheduler {
	return &CleanupScheduler{store: store, cron: cron.New(), logger: logger}
}

// Start registers the sweep on the given cron spec (e.g. "0 3 * * *"
// for daily at 03:00) and starts the scheduler's goroutine.
func (c *CleanupScheduler) Start(spec string) error {
	_, err := c.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil && c.logger != nil {
				c.logger.WithField("panic", r).Error("auth cleanup sweep panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := c.store.CleanupExpiredRefreshTokens(ctx, RefreshTokenRetention)
		if err != nil {
			if c.logger != nil {
				c.logger.WithError(err).Error("auth cleanup sweep failed")
			}
			return
		}
		if c.logger != nil && n > 0 {
			c.logger.WithField("count", n).Info("auth cleanup sweep removed expired refresh tokens")
		}
	})
	if err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (c *CleanupScheduler) Stop() {
	<-c.cron.Stop().Done()
}
