package storage

import (
	"context"
	"fmt"
	"time"
)

type SpamLog struct {
	ID             int64
	GuildID        string
	UserID         string
	Reason         string
	Action         string
	Points         int
	ViolationCount int
	Details        string
	CreatedAt      time.Time
}

// UserPoints aggregates one member's log entries.
type UserPoints struct {
	UserID        string
	Points        int
	MaxViolations int
	Entries       int
}

const spamLogColumns = `id, guild_id, user_id, reason, action, points, violation_count, details, created_at`

func (s *Store) AddSpamLog(ctx context.Context, log SpamLog) error {
	created := log.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO spam_logs (guild_id, user_id, reason, action, points, violation_count, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), log.GuildID, log.UserID, log.Reason, log.Action, log.Points, log.ViolationCount, log.Details, created.Unix())
	if err != nil {
		return fmt.Errorf("add spam log: %w", err)
	}
	return nil
}

// ListSpamLogs returns the newest entries of a guild first.
func (s *Store) ListSpamLogs(ctx context.Context, guildID string, limit int) ([]SpamLog, error) {
	return s.querySpamLogs(ctx, `
		SELECT `+spamLogColumns+` FROM spam_logs
		WHERE guild_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, guildID, normalizeLimit(limit))
}

func (s *Store) ListUserHistory(ctx context.Context, guildID, userID string, limit int) ([]SpamLog, error) {
	return s.querySpamLogs(ctx, `
		SELECT `+spamLogColumns+` FROM spam_logs
		WHERE guild_id = ? AND user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, guildID, userID, normalizeLimit(limit))
}

func (s *Store) ListActionLogs(ctx context.Context, guildID, action string, limit int) ([]SpamLog, error) {
	return s.querySpamLogs(ctx, `
		SELECT `+spamLogColumns+` FROM spam_logs
		WHERE guild_id = ? AND action = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, guildID, action, normalizeLimit(limit))
}

func (s *Store) ListSpamLogsSince(ctx context.Context, guildID string, since time.Time) ([]SpamLog, error) {
	return s.querySpamLogs(ctx, `
		SELECT `+spamLogColumns+` FROM spam_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC`, guildID, since.Unix())
}

// UserPoints ranks members of a guild by total points.
func (s *Store) UserPoints(ctx context.Context, guildID string, limit int) ([]UserPoints, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT user_id, COALESCE(SUM(points), 0), COALESCE(MAX(violation_count), 0), COUNT(*)
		FROM spam_logs
		WHERE guild_id = ?
		GROUP BY user_id
		ORDER BY 2 DESC, user_id
		LIMIT ?`), guildID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("user points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []UserPoints
	for rows.Next() {
		var up UserPoints
		if err := rows.Scan(&up.UserID, &up.Points, &up.MaxViolations, &up.Entries); err != nil {
			return nil, fmt.Errorf("scan user points: %w", err)
		}
		out = append(out, up)
	}
	return out, rows.Err()
}

// CleanupSpamLogs deletes entries older than retentionDays and reports how
// many were removed. A non-positive retention keeps everything.
func (s *Store) CleanupSpamLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM spam_logs WHERE created_at < ?`), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup spam logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *Store) querySpamLogs(ctx context.Context, query string, args ...any) ([]SpamLog, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query spam logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []SpamLog
	for rows.Next() {
		var log SpamLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Reason, &log.Action,
			&log.Points, &log.ViolationCount, &log.Details, &created); err != nil {
			return nil, fmt.Errorf("scan spam log: %w", err)
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
