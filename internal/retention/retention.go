// Package retention prunes aged, confirmed messages from the local
// store on a cron schedule. Unconfirmed sends are never pruned.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/config"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/logger"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/store"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/telemetry"
)

// Start starts the retention scheduler if enabled. Returns a cancel
// func; cancelling stops the scheduler without waiting for an in-flight
// run.
func Start(ctx context.Context, cfg config.RetentionConfig, st *store.Store) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	period := cfg.Period.Duration()
	if period <= 0 {
		return nil, fmt.Errorf("retention period must be positive, got %s", period)
	}

	// Empty cron means the daily default at 02:00.
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", period)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period, st)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression with
// gronx and sleeps until then, supporting full cron syntax.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration, st *store.Store) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(st, period); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single prune pass. Exposed so admin surfaces and
// tests can trigger retention on demand.
func RunOnce(st *store.Store, period time.Duration) error {
	started := time.Now()
	n, err := st.PruneOlderThan(period)
	if err != nil {
		return err
	}
	telemetry.PrunedMessagesTotal.Add(float64(n))
	logger.Info("retention_run_complete", "pruned", n, "period", period, "took", time.Since(started))
	return nil
}
