// Package worker holds the background jobs started by cmd/server.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionReaper deletes expired session rows.
type SessionReaper interface {
	ReapExpired(ctx context.Context) (int64, error)
}

// Pruner drops expired entries from a process-local revocation registry.
type Pruner interface {
	Prune(now time.Time) int
}

// Reaper periodically removes expired sessions and, when a local registry
// is in use, expired revocation entries.
type Reaper struct {
	Sessions SessionReaper
	Registry Pruner // nil when revocations live in Redis
	Interval time.Duration
	Log      *zap.SugaredLogger
	Now      func() time.Time
}

// Run ticks until ctx is cancelled.  One pass also runs immediately so a
// restart after a long outage does not wait a full interval.
func (r *Reaper) Run(ctx context.Context) {
	if r.Log == nil {
		r.Log = zap.NewNop().Sugar()
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reaping pass.
func (r *Reaper) RunOnce(ctx context.Context) {
	if r.Log == nil {
		r.Log = zap.NewNop().Sugar()
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Sessions != nil {
		pass, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := r.Sessions.ReapExpired(pass)
		cancel()
		switch {
		case err != nil:
			if ctx.Err() == nil {
				r.Log.Warnw("session reap failed", "error", err)
			}
		case n > 0:
			r.Log.Infow("expired sessions reaped", "count", n)
		}
	}
	if r.Registry != nil {
		if n := r.Registry.Prune(r.Now()); n > 0 {
			r.Log.Debugw("revocation entries pruned", "count", n)
		}
	}
}
