// Package audit records moderation outcomes to the store and the process log.
package audit

import (
	"context"
	"time"

	"spamguard/internal/storage"

	"go.uber.org/zap"
)

const (
	ActionWarn    = "warn"
	ActionDelete  = "delete"
	ActionTimeout = "timeout"
	ActionKick    = "kick"
	ActionBan     = "ban"
	ActionForgive = "forgive"
)

// PointsFor weighs an action for the moderation log. Unknown actions score 0.
func PointsFor(action string) int {
	switch action {
	case ActionWarn, ActionDelete:
		return 1
	case ActionTimeout:
		return 3
	case ActionKick, ActionBan:
		return 5
	default:
		return 0
	}
}

type Entry struct {
	GuildID        string
	UserID         string
	Reason         string
	Action         string
	ViolationCount int
	Details        string
}

type Store interface {
	AddSpamLog(ctx context.Context, log storage.SpamLog) error
	ListUserHistory(ctx context.Context, guildID, userID string, limit int) ([]storage.SpamLog, error)
}

type Logger struct {
	store  Store
	logger *zap.Logger
	notify func(context.Context, storage.SpamLog)
	now    func() time.Time
}

func NewLogger(store Store, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.SpamLog)) {
	l.notify = notify
}

// LogViolation persists the entry and mirrors it to the notifier. Store
// failures are logged and swallowed.
func (l *Logger) LogViolation(ctx context.Context, entry Entry) storage.SpamLog {
	log := storage.SpamLog{
		GuildID:        entry.GuildID,
		UserID:         entry.UserID,
		Reason:         entry.Reason,
		Action:         entry.Action,
		Points:         PointsFor(entry.Action),
		ViolationCount: entry.ViolationCount,
		Details:        entry.Details,
		CreatedAt:      l.now(),
	}
	if l.store != nil {
		if err := l.store.AddSpamLog(ctx, log); err != nil {
			l.logger.Warn("spam log persist failed", zap.String("guild_id", log.GuildID), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, log)
	}
	l.logger.Info("moderation",
		zap.String("guild_id", log.GuildID),
		zap.String("user_id", log.UserID),
		zap.String("action", log.Action),
		zap.String("reason", log.Reason),
		zap.Int("points", log.Points),
		zap.Int("violation_count", log.ViolationCount),
	)
	return log
}

func (l *Logger) History(ctx context.Context, guildID, userID string, limit int) ([]storage.SpamLog, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.ListUserHistory(ctx, guildID, userID, limit)
}
