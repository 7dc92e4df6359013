package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

type Store struct {
	db      *sql.DB
	dialect string
}

type GuildSettings struct {
	GuildID           string
	Enabled           bool
	SpamLimit         int
	TimeWindowSeconds int
	LinkBlock         bool
	MentionLimit      int
	NewUserMinutes    int
	ExceptionKeywords []string
	LogChannelID      string
	UpdatedAt         time.Time
}

// Open picks the driver from the URL: postgres:// and postgresql:// go to
// pgx, anything else is treated as a SQLite path.
func Open(databaseURL string) (*Store, error) {
	driver, dialect := "sqlite", DialectSQLite
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver, dialect = "pgx", DialectPostgres
	}
	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// :memory: databases are per connection
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Dialect() string {
	return s.dialect
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	dir := "migrations/sqlite"
	if s.dialect == DialectPostgres {
		dir = "migrations/postgres"
	}
	if err := goose.Up(s.db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string, defaults GuildSettings) (GuildSettings, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT enabled, spam_limit, time_window, link_block, mention_limit,
		new_user_minutes, exception_keywords, log_channel_id, updated_at
		FROM guild_configs WHERE guild_id = ?`), guildID)

	result := defaults
	result.GuildID = guildID

	var enabled, linkBlock int
	var keywords string
	var updated int64
	err := row.Scan(
		&enabled,
		&result.SpamLimit,
		&result.TimeWindowSeconds,
		&linkBlock,
		&result.MentionLimit,
		&result.NewUserMinutes,
		&keywords,
		&result.LogChannelID,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return GuildSettings{}, fmt.Errorf("get guild settings: %w", err)
	}
	result.Enabled = enabled == 1
	result.LinkBlock = linkBlock == 1
	result.ExceptionKeywords = splitKeywords(keywords)
	result.UpdatedAt = time.Unix(updated, 0)
	return result, nil
}

func (s *Store) UpsertGuildSettings(ctx context.Context, settings GuildSettings) error {
	updated := settings.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO guild_configs (
			guild_id, enabled, spam_limit, time_window, link_block, mention_limit,
			new_user_minutes, exception_keywords, log_channel_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			enabled = excluded.enabled,
			spam_limit = excluded.spam_limit,
			time_window = excluded.time_window,
			link_block = excluded.link_block,
			mention_limit = excluded.mention_limit,
			new_user_minutes = excluded.new_user_minutes,
			exception_keywords = excluded.exception_keywords,
			log_channel_id = excluded.log_channel_id,
			updated_at = excluded.updated_at
	`),
		settings.GuildID,
		boolToInt(settings.Enabled),
		settings.SpamLimit,
		settings.TimeWindowSeconds,
		boolToInt(settings.LinkBlock),
		settings.MentionLimit,
		settings.NewUserMinutes,
		joinKeywords(settings.ExceptionKeywords),
		settings.LogChannelID,
		updated.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert guild settings: %w", err)
	}
	return nil
}

func (s *Store) ListGuildSettings(ctx context.Context) ([]GuildSettings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, enabled, spam_limit, time_window, link_block, mention_limit,
		new_user_minutes, exception_keywords, log_channel_id, updated_at
		FROM guild_configs ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("list guild settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []GuildSettings
	for rows.Next() {
		var gs GuildSettings
		var enabled, linkBlock int
		var keywords string
		var updated int64
		if err := rows.Scan(&gs.GuildID, &enabled, &gs.SpamLimit, &gs.TimeWindowSeconds, &linkBlock,
			&gs.MentionLimit, &gs.NewUserMinutes, &keywords, &gs.LogChannelID, &updated); err != nil {
			return nil, fmt.Errorf("scan guild settings: %w", err)
		}
		gs.Enabled = enabled == 1
		gs.LinkBlock = linkBlock == 1
		gs.ExceptionKeywords = splitKeywords(keywords)
		gs.UpdatedAt = time.Unix(updated, 0)
		out = append(out, gs)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitKeywords(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// joinKeywords drops blanks and commas inside a keyword, which would
// otherwise split it on read.
func joinKeywords(keywords []string) string {
	clean := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(strings.ReplaceAll(k, ",", " "))
		if k != "" {
			clean = append(clean, k)
		}
	}
	return strings.Join(clean, ",")
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
