package analytics

import (
	"context"
	"testing"
	"time"

	"spamguard/internal/storage"

	"github.com/google/go-cmp/cmp"
)

func TestReportAndLeaderboard(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	logs := []storage.SpamLog{
		{GuildID: "g1", UserID: "u1", Reason: "message flood", Action: "warn", Points: 1, ViolationCount: 1, CreatedAt: now.Add(-48 * time.Hour)},
		{GuildID: "g1", UserID: "u1", Reason: "message flood", Action: "delete", Points: 1, ViolationCount: 2, CreatedAt: now.Add(-time.Hour)},
		{GuildID: "g1", UserID: "u2", Reason: "mass mention", Action: "timeout", Points: 3, ViolationCount: 1, CreatedAt: now.Add(-time.Minute)},
		{GuildID: "g1", UserID: "u3", Reason: "", Action: "forgive", Points: 0, CreatedAt: now},
		{GuildID: "g2", UserID: "u1", Reason: "message flood", Action: "warn", Points: 1, ViolationCount: 1, CreatedAt: now},
	}
	for _, log := range logs {
		if err := store.AddSpamLog(ctx, log); err != nil {
			t.Fatalf("add log: %v", err)
		}
	}

	svc := New(store)
	since := now.Add(-24 * time.Hour)
	report, err := svc.Report(ctx, "g1", since)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	want := Report{
		Since:    since,
		Total:    3,
		Points:   4,
		Members:  3,
		ByAction: map[string]int{"delete": 1, "timeout": 1, "forgive": 1},
		ByReason: map[string]int{"message flood": 1, "mass mention": 1},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}

	board, err := svc.Leaderboard(ctx, "g1", 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].UserID != "u2" || board[0].Points != 3 || board[1].UserID != "u1" {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}
