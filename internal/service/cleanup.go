package service

import (
	"context"
	"fmt"
	"time"

	"followpro/api/config"
	"followpro/api/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner removes records nobody can use anymore
type Cleaner struct {
	store   store.Store
	timeout time.Duration
	now     func() time.Time
}

func NewCleaner(s store.Store, timeout time.Duration, now func() time.Time) *Cleaner {
	if now == nil {
		now = time.Now
	}

	return &Cleaner{store: s, timeout: timeout, now: now}
}

// TokenCleanup deletes every expired one-time code
func (c *Cleaner) TokenCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	n, err := c.store.DeleteExpiredOtps(ctx, c.now().UnixMilli())
	if err != nil {
		zap.L().Error("Failed to cleanup expired tokens", zap.Error(err))
		return
	}

	if n > 0 {
		zap.L().Debug("Cleaned up expired tokens", zap.Int64("count", n))
	}
}

// AccountCleanup deletes accounts that never verified before their
// ExpiresAt passed
func (c *Cleaner) AccountCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	n, err := c.store.DeleteUnverifiedBefore(ctx, c.now().UTC())
	if err != nil {
		zap.L().Error("Failed to cleanup unverified accounts", zap.Error(err))
		return
	}

	if n > 0 {
		zap.L().Info("Cleaned up unverified accounts", zap.Int64("count", n))
	}
}

// ScheduleCleanup registers both cleanup jobs on a new cron scheduler. The
// caller starts and stops it.
func ScheduleCleanup(c *Cleaner, cfg config.Cleanup) (*cron.Cron, error) {
	logger := cron.PrintfLogger(zap.NewStdLog(zap.L().Named("cron")))

	cr := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := cr.AddFunc(fmt.Sprintf("@every %s", cfg.TokensEvery), c.TokenCleanup); err != nil {
		return nil, fmt.Errorf("failed to schedule token cleanup, %w", err)
	}

	zap.L().Debug("Token cleanup attached", zap.Duration("tick_every", cfg.TokensEvery))

	if cfg.UnverifiedTTL > 0 {
		if _, err := cr.AddFunc(fmt.Sprintf("@every %s", cfg.AccountsEvery), c.AccountCleanup); err != nil {
			return nil, fmt.Errorf("failed to schedule account cleanup, %w", err)
		}

		zap.L().Debug("Account cleanup attached", zap.Duration("tick_every", cfg.AccountsEvery))
	}

	return cr, nil
}
