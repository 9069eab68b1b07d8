package app

import (
	"context"
	"time"

	pkgcron "github.com/futureofwork/core/internal/pkg/cron"
	"go.uber.org/zap"
)

const (
	deletionInterval   = time.Hour
	pruneInterval      = time.Hour
	tokenPurgeInterval = 24 * time.Hour
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, a *App) {
	cronLogger := a.logger.Named("CronService")
	sweepEvery := a.cfg.Security.SweepInterval
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}

	sched.Register(pkgcron.Job{
		Name:        "escalate_ip_activity",
		Description: "Flag bursty IPs as suspicious and blacklist the worst offenders",
		Interval:    sweepEvery,
		Fn: func(ctx context.Context) error {
			_, err := a.security.Sweep(ctx)
			return err
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "delete_deactivated_accounts",
		Description: "Delete accounts deactivated longer than the grace period",
		Interval:    deletionInterval,
		Fn: func(ctx context.Context) error {
			n, err := a.accounts.DeleteExpiredDeactivated(ctx)
			a.metrics.Deletions.Add(float64(n))
			if n > 0 {
				cronLogger.Info("deleted expired accounts", zap.Int("count", n))
			}
			return err
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "prune_ip_activity",
		Description: "Drop IP activity older than " + humanizeDuration(a.cfg.Security.ActivityRetention),
		Interval:    pruneInterval,
		Fn: func(ctx context.Context) error {
			n, err := a.security.PruneActivity(ctx)
			if n > 0 {
				cronLogger.Info("pruned ip activity", zap.Int64("rows", n))
			}
			return err
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "purge_refresh_tokens",
		Description: "Remove refresh tokens expired or revoked more than a day ago",
		Interval:    tokenPurgeInterval,
		Fn: func(ctx context.Context) error {
			n, err := a.ledger.PurgeExpired(time.Now().Add(-tokenPurgeInterval))
			if n > 0 {
				cronLogger.Info("purged refresh tokens", zap.Int64("rows", n))
			}
			return err
		},
	})
}
