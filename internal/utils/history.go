package utils

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const minHistoryCapacity = 20

type MessageRecord struct {
	Timestamp  time.Time
	Content    string
	Normalized string
}

// HistoryCapacity is the buffer size used for a given spam limit.
func HistoryCapacity(spamLimit int) int {
	if 2*spamLimit > minHistoryCapacity {
		return 2 * spamLimit
	}
	return minHistoryCapacity
}

type HistoryBuffer struct {
	mu      sync.Mutex
	records []MessageRecord
}

func (b *HistoryBuffer) Append(record MessageRecord, capacity int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.records); n > 0 && record.Timestamp.Before(b.records[n-1].Timestamp) {
		record.Timestamp = b.records[n-1].Timestamp
	}
	b.records = append(b.records, record)
	if capacity > 0 && len(b.records) > capacity {
		b.records = b.records[len(b.records)-capacity:]
	}
	return len(b.records)
}

func (b *HistoryBuffer) PruneExpired(now time.Time, window time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := 0
	for _, record := range b.records {
		if now.Sub(record.Timestamp) <= window {
			break
		}
		idx++
	}
	if idx > 0 {
		// copy so evicted records do not stay reachable through the backing array
		b.records = append([]MessageRecord(nil), b.records[idx:]...)
	}
	return len(b.records)
}

func (b *HistoryBuffer) Snapshot() []MessageRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]MessageRecord(nil), b.records...)
}

func (b *HistoryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// HistoryStore keeps one HistoryBuffer per key. Idle keys are evicted
// least-recently-used first once maxKeys is reached.
type HistoryStore struct {
	buffers *lru.Cache[string, *HistoryBuffer]
}

func NewHistoryStore(maxKeys int) (*HistoryStore, error) {
	if maxKeys <= 0 {
		maxKeys = 100_000
	}
	buffers, err := lru.New[string, *HistoryBuffer](maxKeys)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{buffers: buffers}, nil
}

func (s *HistoryStore) Append(key string, record MessageRecord, capacity int) int {
	return s.buffer(key).Append(record, capacity)
}

func (s *HistoryStore) PruneExpired(key string, now time.Time, window time.Duration) int {
	buffer, ok := s.buffers.Get(key)
	if !ok {
		return 0
	}
	return buffer.PruneExpired(now, window)
}

func (s *HistoryStore) Snapshot(key string) []MessageRecord {
	buffer, ok := s.buffers.Get(key)
	if !ok {
		return nil
	}
	return buffer.Snapshot()
}

// Len returns the number of tracked keys.
func (s *HistoryStore) Len() int {
	return s.buffers.Len()
}

func (s *HistoryStore) buffer(key string) *HistoryBuffer {
	if buffer, ok := s.buffers.Get(key); ok {
		return buffer
	}
	fresh := &HistoryBuffer{}
	if previous, ok, _ := s.buffers.PeekOrAdd(key, fresh); ok {
		return previous
	}
	return fresh
}
