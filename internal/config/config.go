package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken         string         `yaml:"discord_token"`
	DatabaseURL          string         `yaml:"database_url"`
	LogLevel             string         `yaml:"log_level"`
	LogChannelID         string         `yaml:"log_channel_id"`
	RetentionDays        int            `yaml:"retention_days"`
	Mode                 string         `yaml:"mode"`
	SettingsCacheSeconds int            `yaml:"settings_cache_seconds"`
	Health               HealthConfig   `yaml:"health"`
	Spam                 SpamDefaults   `yaml:"spam"`
	Strikes              StrikesConfig  `yaml:"strikes"`
	History              HistoryConfig  `yaml:"history"`
	Actions              ActionConfig   `yaml:"actions"`
	Retention            RetentionTimer `yaml:"retention"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SpamDefaults seed the settings of a guild that has never been configured.
type SpamDefaults struct {
	Enabled           bool     `yaml:"enabled"`
	SpamLimit         int      `yaml:"spam_limit"`
	TimeWindowSeconds int      `yaml:"time_window"`
	LinkBlock         bool     `yaml:"link_block"`
	MentionLimit      int      `yaml:"mention_limit"`
	NewUserMinutes    int      `yaml:"new_user_minutes"`
	ExceptionKeywords []string `yaml:"exception_keywords"`
}

type StrikesConfig struct {
	DecayHours int `yaml:"decay_hours"`
	MaxMembers int `yaml:"max_members"`
}

type HistoryConfig struct {
	MaxMembers int `yaml:"max_members"`
}

type ActionConfig struct {
	Enabled        bool `yaml:"enabled"`
	TimeoutMinutes int  `yaml:"timeout_minutes"`
	NoticeSeconds  int  `yaml:"notice_seconds"`
	DMWarnEnabled  bool `yaml:"dm_warn_enabled"`
}

type RetentionTimer struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

func DefaultConfig() Config {
	return Config{
		DatabaseURL:          "/data/spamguard.db",
		LogLevel:             "info",
		RetentionDays:        30,
		Mode:                 "normal",
		SettingsCacheSeconds: 60,
		Health:               HealthConfig{Enabled: false, Addr: ":8080"},
		Spam: SpamDefaults{
			Enabled:           true,
			SpamLimit:         5,
			TimeWindowSeconds: 7,
			LinkBlock:         true,
			MentionLimit:      5,
			NewUserMinutes:    10,
			ExceptionKeywords: []string{"공지", "announcement", "notice"},
		},
		Strikes: StrikesConfig{DecayHours: 24, MaxMembers: 100_000},
		History: HistoryConfig{MaxMembers: 100_000},
		Actions: ActionConfig{
			Enabled:        true,
			TimeoutMinutes: 10,
			NoticeSeconds:  5,
			DMWarnEnabled:  true,
		},
		Retention: RetentionTimer{IntervalMinutes: 360},
	}
}

// Load reads an optional .env file, then CONFIG_PATH (default config.yaml),
// then environment overrides.
func Load() (Config, error) {
	cfg := DefaultConfig()

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_BOT_TOKEN is required")
	}

	cfg.Mode = normalizeMode(cfg.Mode)
	normalize(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DiscordToken = envString("DISCORD_BOT_TOKEN", cfg.DiscordToken)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogChannelID = envString("LOG_CHANNEL_ID", cfg.LogChannelID)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Mode = envString("MODE", cfg.Mode)
	cfg.SettingsCacheSeconds = envInt("SETTINGS_CACHE_SECONDS", cfg.SettingsCacheSeconds)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Spam.Enabled = envBool("DEFAULT_ENABLED", cfg.Spam.Enabled)
	cfg.Spam.SpamLimit = envInt("DEFAULT_SPAM_LIMIT", cfg.Spam.SpamLimit)
	cfg.Spam.TimeWindowSeconds = envInt("DEFAULT_TIME_WINDOW", cfg.Spam.TimeWindowSeconds)
	cfg.Spam.LinkBlock = envBool("DEFAULT_LINK_BLOCK", cfg.Spam.LinkBlock)
	cfg.Spam.MentionLimit = envInt("DEFAULT_MENTION_LIMIT", cfg.Spam.MentionLimit)
	cfg.Spam.NewUserMinutes = envInt("DEFAULT_NEW_USER_MINUTES", cfg.Spam.NewUserMinutes)
	cfg.Spam.ExceptionKeywords = envCSV("DEFAULT_EXCEPTION_KEYWORDS", cfg.Spam.ExceptionKeywords)
	cfg.Strikes.DecayHours = envInt("STRIKE_DECAY_HOURS", cfg.Strikes.DecayHours)
	cfg.Strikes.MaxMembers = envInt("STRIKE_MAX_MEMBERS", cfg.Strikes.MaxMembers)
	cfg.History.MaxMembers = envInt("HISTORY_MAX_MEMBERS", cfg.History.MaxMembers)
	cfg.Actions.Enabled = envBool("ACTIONS_ENABLED", cfg.Actions.Enabled)
	cfg.Actions.TimeoutMinutes = envInt("ACTIONS_TIMEOUT_MINUTES", cfg.Actions.TimeoutMinutes)
	cfg.Actions.NoticeSeconds = envInt("ACTIONS_NOTICE_SECONDS", cfg.Actions.NoticeSeconds)
	cfg.Actions.DMWarnEnabled = envBool("DM_WARN_ENABLED", cfg.Actions.DMWarnEnabled)
	cfg.Retention.IntervalMinutes = envInt("RETENTION_INTERVAL_MINUTES", cfg.Retention.IntervalMinutes)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func envCSV(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return SplitKeywords(value)
}

// SplitKeywords splits a comma separated list, trimming blanks.
func SplitKeywords(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeMode(value string) string {
	switch strings.ToLower(value) {
	case "audit":
		return "audit"
	default:
		return "normal"
	}
}

// normalize replaces out-of-range values with defaults.
func normalize(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Spam.SpamLimit < 1 {
		cfg.Spam.SpamLimit = defaults.Spam.SpamLimit
	}
	if cfg.Spam.TimeWindowSeconds < 1 {
		cfg.Spam.TimeWindowSeconds = defaults.Spam.TimeWindowSeconds
	}
	if cfg.Spam.MentionLimit < 0 {
		cfg.Spam.MentionLimit = defaults.Spam.MentionLimit
	}
	if cfg.Spam.NewUserMinutes < 0 {
		cfg.Spam.NewUserMinutes = defaults.Spam.NewUserMinutes
	}
	if cfg.Strikes.DecayHours < 1 {
		cfg.Strikes.DecayHours = defaults.Strikes.DecayHours
	}
	if cfg.Actions.TimeoutMinutes < 1 {
		cfg.Actions.TimeoutMinutes = defaults.Actions.TimeoutMinutes
	}
	if cfg.Actions.NoticeSeconds < 0 {
		cfg.Actions.NoticeSeconds = defaults.Actions.NoticeSeconds
	}
	if cfg.Retention.IntervalMinutes < 1 {
		cfg.Retention.IntervalMinutes = defaults.Retention.IntervalMinutes
	}
	if cfg.SettingsCacheSeconds < 0 {
		cfg.SettingsCacheSeconds = 0
	}
}
