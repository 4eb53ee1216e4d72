package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is the slice of the session service the janitor needs.
type Sweeper interface {
	CleanExpiredSessions() (int64, error)
}

// Janitor periodically reclaims expired sessions. It runs one sweep after a
// short startup delay, catching sessions that expired while the process was
// down, then repeats on a fixed interval regardless of request traffic.
// A failing sweep is logged and discarded; the next tick fires on schedule.
// Multiple instances may run janitors concurrently: the sweep is a
// conditional bulk update, so redundant passes are harmless.
type Janitor struct {
	sweeper      Sweeper
	logger       *slog.Logger
	initialDelay time.Duration
	interval     time.Duration
}

func NewJanitor(sweeper Sweeper, logger *slog.Logger, initialDelay, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		sweeper:      sweeper,
		logger:       logger,
		initialDelay: initialDelay,
		interval:     interval,
	}
}

// Start runs the sweep loop until ctx is cancelled. It blocks; run it on
// its own goroutine.
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("session janitor starting",
		"initial_delay", j.initialDelay,
		"interval", j.interval)

	select {
	case <-ctx.Done():
		return
	case <-time.After(j.initialDelay):
	}
	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session janitor stopping")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("session sweep panicked", "panic", r)
		}
	}()

	count, err := j.sweeper.CleanExpiredSessions()
	if err != nil {
		j.logger.Error("session sweep failed", "error", err)
		return
	}
	j.logger.Debug("session sweep complete", "ended", count)
}
