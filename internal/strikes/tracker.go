// Package strikes keeps a per-member violation counter that decays lazily
// while a member stays quiet.
package strikes

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultDecayPeriod = 24 * time.Hour
	defaultMaxMembers  = 100_000
)

type record struct {
	count            int
	lastTriggeredAt  time.Time
	lastDecayCheckAt time.Time
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Config struct {
	DecayPeriod time.Duration
	MaxMembers  int
}

type Tracker struct {
	mu      sync.Mutex
	decay   time.Duration
	clock   Clock
	records *simplelru.LRU[string, *record]
}

func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.DecayPeriod <= 0 {
		cfg.DecayPeriod = DefaultDecayPeriod
	}
	if cfg.MaxMembers <= 0 {
		cfg.MaxMembers = defaultMaxMembers
	}
	records, err := simplelru.NewLRU[string, *record](cfg.MaxMembers, nil)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		decay:   cfg.DecayPeriod,
		clock:   realClock{},
		records: records,
	}, nil
}

func (t *Tracker) WithClock(clock Clock) {
	t.mu.Lock()
	t.clock = clock
	t.mu.Unlock()
}

// Increment records one strike and returns the cumulative count after decay.
func (t *Tracker) Increment(guildID, userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := guildID + ":" + userID
	now := t.clock.Now()

	item, _ := t.records.Get(key)
	if item != nil {
		elapsed := now.Sub(item.lastDecayCheckAt)
		if elapsed >= t.decay {
			steps := int(elapsed / t.decay)
			item.count = max(0, item.count-steps)
			item.lastDecayCheckAt = now
		}
	}
	if item == nil || item.count <= 0 {
		item = &record{count: 0, lastTriggeredAt: now, lastDecayCheckAt: now}
	}

	item.count++
	item.lastTriggeredAt = now
	t.records.Add(key, item)
	return item.count
}

// Count returns the stored count without applying decay.
func (t *Tracker) Count(guildID, userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.records.Peek(guildID + ":" + userID)
	if !ok {
		return 0
	}
	return item.count
}

func (t *Tracker) Reset(guildID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records.Remove(guildID + ":" + userID)
}

// Len returns the number of members with a live record.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records.Len()
}
