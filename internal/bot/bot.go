package bot

import (
	"context"
	"fmt"
	"time"

	"spamguard/internal/analytics"
	"spamguard/internal/config"
	"spamguard/internal/modules/antispam"
	"spamguard/internal/modules/audit"
	"spamguard/internal/storage"
	"spamguard/internal/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const settingsCacheSize = 4096

const (
	colorAction  = 0xF59E0B
	colorWarning = 0xEF4444
	colorInfo    = 0x3B82F6
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	detector  *antispam.Detector
	audit     *audit.Logger
	analytics *analytics.Service
	executor  *Executor
	mod       Moderator
	session   *discordgo.Session
	settings  *expirable.LRU[string, storage.GuildSettings]
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, detector *antispam.Detector, auditLogger *audit.Logger, analyticsEngine *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsMessageContent

	b := newBot(cfg, logger, store, detector, auditLogger, analyticsEngine, sessionModerator{session: session})
	b.session = session
	return b, nil
}

func newBot(cfg config.Config, logger *zap.Logger, store *storage.Store, detector *antispam.Detector, auditLogger *audit.Logger, analyticsEngine *analytics.Service, mod Moderator) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := time.Duration(cfg.SettingsCacheSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		detector:  detector,
		audit:     auditLogger,
		analytics: analyticsEngine,
		executor:  NewExecutor(mod, cfg.Actions, logger),
		mod:       mod,
		settings:  expirable.NewLRU[string, storage.GuildSettings](settingsCacheSize, nil, ttl),
	}
	if b.audit != nil {
		b.audit.SetNotifier(b.notifyLog)
	}
	return b
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildBanAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	return b.registerCommands()
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, event *discordgo.MessageCreate) {
	if event.Message == nil || event.Author == nil || event.Author.Bot || event.GuildID == "" {
		return
	}

	member := b.memberForUser(event.GuildID, event.Author.ID, event.Member)
	if member == nil {
		return
	}
	guild, _ := session.State.Guild(event.GuildID)
	if guild == nil {
		guild, _ = session.Guild(event.GuildID)
	}
	if isPrivileged(guild, member, event.Author.ID) {
		return
	}

	msg, ok := messageFromEvent(event.Message, member)
	if !ok {
		return
	}
	b.handleMessage(context.Background(), msg)
}

// handleMessage runs detection and applies the outcome.
func (b *Bot) handleMessage(ctx context.Context, msg antispam.Message) (antispam.Action, bool) {
	settings := b.guildSettings(ctx, msg.GuildID)
	action, flagged := b.detector.RegisterMessage(ctx, msg, detectorSettings(settings))
	if !flagged {
		return antispam.Action{}, false
	}

	auditOnly := b.isAuditMode()
	executed, err := b.executor.Execute(ctx, msg, action, auditOnly)
	if err != nil {
		b.logger.Warn("action failed",
			zap.String("guild_id", msg.GuildID),
			zap.String("user_id", msg.AuthorID),
			zap.String("action", string(action.Kind)),
			zap.Error(err),
		)
	}

	details := action.Details
	if !executed {
		details = "[simulated] " + details
	}
	if hosts := utils.LinkHosts(msg.Content); len(hosts) > 0 {
		b.logger.Info("flagged message links", zap.String("guild_id", msg.GuildID), zap.Strings("hosts", hosts))
	}
	b.audit.LogViolation(ctx, audit.Entry{
		GuildID:        msg.GuildID,
		UserID:         msg.AuthorID,
		Reason:         action.Reason,
		Action:         string(action.Kind),
		ViolationCount: action.ViolationCount,
		Details:        details,
	})
	return action, true
}

func (b *Bot) onGuildBanAdd(session *discordgo.Session, event *discordgo.GuildBanAdd) {
	if event.GuildID == "" || event.User == nil {
		return
	}
	b.recordBan(context.Background(), event.GuildID, event.User.ID)
}

func (b *Bot) recordBan(ctx context.Context, guildID, userID string) {
	b.audit.LogViolation(ctx, audit.Entry{
		GuildID: guildID,
		UserID:  userID,
		Reason:  "guild ban",
		Action:  audit.ActionBan,
	})
}

func (b *Bot) memberForUser(guildID, userID string, fallback *discordgo.Member) *discordgo.Member {
	if b.session != nil {
		if member, err := b.session.State.Member(guildID, userID); err == nil && member != nil {
			return member
		}
	}
	if fallback != nil {
		return fallback
	}
	if b.session == nil {
		return nil
	}
	member, _ := b.session.GuildMember(guildID, userID)
	return member
}

func (b *Bot) defaultSettings(guildID string) storage.GuildSettings {
	spam := b.cfg.Spam
	return storage.GuildSettings{
		GuildID:           guildID,
		Enabled:           spam.Enabled,
		SpamLimit:         spam.SpamLimit,
		TimeWindowSeconds: spam.TimeWindowSeconds,
		LinkBlock:         spam.LinkBlock,
		MentionLimit:      spam.MentionLimit,
		NewUserMinutes:    spam.NewUserMinutes,
		ExceptionKeywords: append([]string(nil), spam.ExceptionKeywords...),
		LogChannelID:      b.cfg.LogChannelID,
	}
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	if cached, ok := b.settings.Get(guildID); ok {
		return cached
	}
	defaults := b.defaultSettings(guildID)
	settings, err := b.store.GetGuildSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild settings fallback", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	b.settings.Add(guildID, settings)
	return settings
}

func (b *Bot) saveGuildSettings(ctx context.Context, settings storage.GuildSettings) error {
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		return err
	}
	b.settings.Remove(settings.GuildID)
	return nil
}

func detectorSettings(s storage.GuildSettings) antispam.Settings {
	return antispam.Settings{
		Enabled:           s.Enabled,
		SpamLimit:         s.SpamLimit,
		TimeWindowSeconds: s.TimeWindowSeconds,
		LinkBlock:         s.LinkBlock,
		MentionLimit:      s.MentionLimit,
		NewUserMinutes:    s.NewUserMinutes,
		ExceptionKeywords: s.ExceptionKeywords,
	}
}

func (b *Bot) isAuditMode() bool {
	return b.cfg.Mode == "audit"
}

// notifyLog mirrors a moderation log entry to the guild's log channel.
func (b *Bot) notifyLog(ctx context.Context, entry storage.SpamLog) {
	settings := b.guildSettings(ctx, entry.GuildID)
	channelID := settings.LogChannelID
	if channelID == "" {
		channelID = b.cfg.LogChannelID
	}
	if channelID == "" || b.mod == nil {
		return
	}
	if err := b.mod.SendEmbed(channelID, logEmbed(entry)); err != nil {
		b.logger.Debug("log channel send failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func logEmbed(entry storage.SpamLog) *discordgo.MessageEmbed {
	color := colorAction
	switch entry.Action {
	case audit.ActionKick, audit.ActionBan:
		color = colorWarning
	case audit.ActionForgive:
		color = colorInfo
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Member", Value: "<@" + entry.UserID + ">", Inline: true},
		{Name: "Action", Value: entry.Action, Inline: true},
		{Name: "Points", Value: fmt.Sprintf("%d", entry.Points), Inline: true},
	}
	if entry.ViolationCount > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Strikes", Value: fmt.Sprintf("%d", entry.ViolationCount), Inline: true})
	}
	if entry.Details != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Content", Value: utils.Truncate(entry.Details, 1000), Inline: false})
	}
	return &discordgo.MessageEmbed{
		Title:     "Spam moderation",
		Color:     color,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
		Fields:    append([]*discordgo.MessageEmbedField{{Name: "Reason", Value: orDash(entry.Reason), Inline: false}}, fields...),
	}
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
