// Package antispam decides whether a chat message is spam and which
// moderation action the author's strike history calls for.
package antispam

import (
	"context"
	"sync"
	"time"

	"spamguard/internal/strikes"
	"spamguard/internal/utils"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

const lockStripes = 256

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Detector is safe for concurrent use. Messages from the same member are
// serialized on one lock stripe so history and strike updates apply as a unit.
type Detector struct {
	locks   [lockStripes]sync.Mutex
	history *utils.HistoryStore
	strikes *strikes.Tracker
	clock   Clock
	logger  *zap.Logger
}

func New(history *utils.HistoryStore, tracker *strikes.Tracker, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		history: history,
		strikes: tracker,
		clock:   realClock{},
		logger:  logger,
	}
}

func (d *Detector) WithClock(clock Clock) {
	d.clock = clock
}

// RegisterMessage records msg in the author's history and evaluates the
// detection rules. It returns false when no rule matched.
func (d *Detector) RegisterMessage(ctx context.Context, msg Message, settings Settings) (Action, bool) {
	_ = ctx
	if msg.GuildID == "" || msg.AuthorID == "" {
		return Action{}, false
	}
	if !settings.Enabled {
		return Action{}, false
	}

	start := time.Now()
	defer func() {
		evaluationDuration.Observe(time.Since(start).Seconds())
	}()
	messagesEvaluated.Inc()

	now := msg.Timestamp
	if now.IsZero() {
		now = d.clock.Now()
	}
	key := memberKey(msg.GuildID, msg.AuthorID)

	lock := d.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	d.history.Append(key, utils.MessageRecord{
		Timestamp:  now,
		Content:    msg.Content,
		Normalized: utils.NormalizeContent(msg.Content),
	}, utils.HistoryCapacity(settings.SpamLimit))
	d.history.PruneExpired(key, now, time.Duration(settings.TimeWindowSeconds)*time.Second)

	eval := &evaluation{
		msg:      msg,
		settings: settings,
		history:  d.history.Snapshot(key),
		mentions: utils.CountMentions(msg.mentions()),
		hasLink:  utils.ContainsLink(msg.Content),
		now:      now,
	}
	matched, ok := firstMatch(eval)
	if !ok {
		return Action{}, false
	}

	count := d.strikes.Increment(msg.GuildID, msg.AuthorID)
	kind := matched.forced
	if kind == "" {
		kind = EscalationFor(count)
	}

	rulesTriggered.WithLabelValues(matched.name).Inc()
	actionsDecided.WithLabelValues(string(kind)).Inc()
	d.logger.Debug("spam rule matched",
		zap.String("guild_id", msg.GuildID),
		zap.String("user_id", msg.AuthorID),
		zap.String("rule", matched.name),
		zap.String("action", string(kind)),
		zap.Int("violation_count", count),
		zap.Int("history", len(eval.history)),
	)

	return Action{
		Kind:           kind,
		Reason:         matched.reason,
		Details:        utils.Truncate(msg.Content, maxDetailsLength),
		ViolationCount: count,
	}, true
}

// ResetUser clears the member's strikes. Message history is left to expire.
func (d *Detector) ResetUser(guildID, userID string) {
	lock := d.lockFor(memberKey(guildID, userID))
	lock.Lock()
	defer lock.Unlock()
	d.strikes.Reset(guildID, userID)
}

func (d *Detector) Strikes(guildID, userID string) int {
	return d.strikes.Count(guildID, userID)
}

func (d *Detector) lockFor(key string) *sync.Mutex {
	return &d.locks[murmur3.Sum32([]byte(key))%lockStripes]
}

func memberKey(guildID, userID string) string {
	return guildID + ":" + userID
}
