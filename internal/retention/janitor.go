// Package retention periodically deletes moderation log entries past the
// configured retention.
package retention

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type Cleaner interface {
	CleanupSpamLogs(ctx context.Context, retentionDays int) (int64, error)
}

type Config struct {
	RetentionDays int
	Interval      time.Duration
}

type Janitor struct {
	mu      sync.Mutex
	cfg     Config
	clock   Clock
	store   Cleaner
	logger  *zap.Logger
	timer   Timer
	running bool
	lastRun time.Time
}

func New(cfg Config, store Cleaner, logger *zap.Logger) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{cfg: cfg, clock: realClock{}, store: store, logger: logger}
}

func (j *Janitor) WithClock(clock Clock) {
	j.clock = clock
}

// Start runs one cleanup immediately, then one per interval until Stop or
// ctx is done. Calling Start twice is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running || j.cfg.RetentionDays <= 0 {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	j.run(ctx)
}

func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = false
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
}

func (j *Janitor) LastRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}

func (j *Janitor) run(ctx context.Context) {
	if ctx.Err() != nil {
		j.Stop()
		return
	}

	deleted, err := j.store.CleanupSpamLogs(ctx, j.cfg.RetentionDays)
	if err != nil {
		j.logger.Warn("retention cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		j.logger.Info("retention cleanup", zap.Int64("deleted", deleted), zap.Int("retention_days", j.cfg.RetentionDays))
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastRun = j.clock.Now()
	if !j.running {
		return
	}
	j.timer = j.clock.AfterFunc(j.cfg.Interval, func() { j.run(ctx) })
}
