// Package reaper runs the periodic housekeeping: builds whose callback never
// arrived are failed, and expired session tokens are dropped.
package reaper

import (
	"context"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/logging"
)

type BuildReaper interface {
	ReapStale(ctx context.Context) ([]string, error)
}

type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

type Reaper struct {
	builds   BuildReaper
	tokens   TokenPurger
	interval time.Duration
	logger   logging.Logger
}

func New(b BuildReaper, t TokenPurger, interval time.Duration, l logging.Logger) *Reaper {
	return &Reaper{builds: b, tokens: t, interval: interval, logger: l.With("module", "reaper")}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info(ctx, "Starting reaper", "interval", r.interval.String())

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		r.Sweep(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "Stopping reaper...")
			return
		case <-t.C:
		}
	}
}

// Sweep runs one pass. Errors are logged; the next pass retries.
func (r *Reaper) Sweep(ctx context.Context) {
	ids, err := r.builds.ReapStale(ctx)
	if err != nil {
		r.logger.Error(ctx, "reaping stale builds failed", "error", err)
	}
	for _, id := range ids {
		r.logger.Warn(ctx, "build timed out", "config_id", id)
	}

	n, err := r.tokens.PurgeExpiredTokens(ctx)
	if err != nil {
		r.logger.Error(ctx, "purging expired tokens failed", "error", err)
	} else if n > 0 {
		r.logger.Debug(ctx, "expired tokens purged", "count", n)
	}
}
