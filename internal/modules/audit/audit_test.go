package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"spamguard/internal/storage"

	"go.uber.org/zap"
)

func TestPointsFor(t *testing.T) {
	cases := map[string]int{
		ActionWarn:    1,
		ActionDelete:  1,
		ActionTimeout: 3,
		ActionKick:    5,
		ActionBan:     5,
		ActionForgive: 0,
		"none":        0,
	}
	for action, want := range cases {
		if got := PointsFor(action); got != want {
			t.Fatalf("%s: expected %d, got %d", action, want, got)
		}
	}
}

func TestLogViolationPersistsAndNotifies(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := NewLogger(store, zap.NewNop())
	logger.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	var notified []storage.SpamLog
	logger.SetNotifier(func(_ context.Context, log storage.SpamLog) {
		notified = append(notified, log)
	})

	ctx := context.Background()
	logger.LogViolation(ctx, Entry{GuildID: "g1", UserID: "u1", Reason: "mass mention", Action: ActionTimeout, ViolationCount: 1, Details: "@everyone"})
	logger.LogViolation(ctx, Entry{GuildID: "g1", UserID: "u1", Reason: "moderator forgave", Action: ActionForgive})

	if len(notified) != 2 || notified[0].Points != 3 || notified[1].Points != 0 {
		t.Fatalf("unexpected notifications %+v", notified)
	}

	history, err := logger.History(ctx, "g1", "u1", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[1].Action != ActionTimeout || history[1].Details != "@everyone" {
		t.Fatalf("unexpected entry %+v", history[1])
	}
}

type failingStore struct{}

func (failingStore) AddSpamLog(context.Context, storage.SpamLog) error {
	return errors.New("disk full")
}

func (failingStore) ListUserHistory(context.Context, string, string, int) ([]storage.SpamLog, error) {
	return nil, errors.New("disk full")
}

func TestLogViolationSurvivesStoreFailure(t *testing.T) {
	logger := NewLogger(failingStore{}, zap.NewNop())
	notified := false
	logger.SetNotifier(func(context.Context, storage.SpamLog) { notified = true })

	log := logger.LogViolation(context.Background(), Entry{GuildID: "g1", UserID: "u1", Action: ActionKick})
	if !notified {
		t.Fatalf("notifier must run even when the store fails")
	}
	if log.Points != 5 {
		t.Fatalf("expected 5 points, got %d", log.Points)
	}
}
