package analytics

import (
	"context"
	"time"

	"spamguard/internal/storage"
)

type Store interface {
	ListSpamLogsSince(ctx context.Context, guildID string, since time.Time) ([]storage.SpamLog, error)
	UserPoints(ctx context.Context, guildID string, limit int) ([]storage.UserPoints, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Since    time.Time
	Total    int
	Points   int
	Members  int
	ByAction map[string]int
	ByReason map[string]int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListSpamLogsSince(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Since:    since,
		ByAction: make(map[string]int),
		ByReason: make(map[string]int),
	}
	members := make(map[string]struct{})
	for _, log := range logs {
		report.Total++
		report.Points += log.Points
		report.ByAction[log.Action]++
		if log.Reason != "" {
			report.ByReason[log.Reason]++
		}
		members[log.UserID] = struct{}{}
	}
	report.Members = len(members)
	return report, nil
}

func (s *Service) Leaderboard(ctx context.Context, guildID string, limit int) ([]storage.UserPoints, error) {
	return s.store.UserPoints(ctx, guildID, limit)
}
