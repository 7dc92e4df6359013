package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spamguard/internal/config"
	"spamguard/internal/modules/antispam"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Moderator is the subset of Discord calls the bot needs.
type Moderator interface {
	SendDM(userID, content string) error
	SendMessage(channelID, content string) (string, error)
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
	DeleteMessage(channelID, messageID string) error
	Timeout(guildID, userID string, until time.Time) error
	Kick(guildID, userID, reason string) error
}

type sessionModerator struct {
	session *discordgo.Session
}

func (m sessionModerator) SendDM(userID, content string) error {
	channel, err := m.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = m.session.ChannelMessageSend(channel.ID, content)
	return err
}

func (m sessionModerator) SendMessage(channelID, content string) (string, error) {
	msg, err := m.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (m sessionModerator) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := m.session.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func (m sessionModerator) DeleteMessage(channelID, messageID string) error {
	return m.session.ChannelMessageDelete(channelID, messageID)
}

func (m sessionModerator) Timeout(guildID, userID string, until time.Time) error {
	return m.session.GuildMemberTimeout(guildID, userID, &until)
}

func (m sessionModerator) Kick(guildID, userID, reason string) error {
	return m.session.GuildMemberDeleteWithReason(guildID, userID, reason)
}

// Executor applies a decided action to Discord. Failures are reported to
// the caller and never feed back into detection.
type Executor struct {
	mod       Moderator
	cfg       config.ActionConfig
	logger    *zap.Logger
	now       func() time.Time
	afterFunc func(time.Duration, func())
}

func NewExecutor(mod Moderator, cfg config.ActionConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		mod:    mod,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Execute returns false when the action was only simulated.
func (e *Executor) Execute(ctx context.Context, msg antispam.Message, action antispam.Action, auditOnly bool) (bool, error) {
	_ = ctx
	if auditOnly || !e.cfg.Enabled {
		e.logger.Info("action simulated",
			zap.String("guild_id", msg.GuildID),
			zap.String("user_id", msg.AuthorID),
			zap.String("action", string(action.Kind)),
			zap.Bool("audit_mode", auditOnly),
		)
		return false, nil
	}

	switch action.Kind {
	case antispam.ActionWarn:
		return true, e.dm(msg.AuthorID, fmt.Sprintf("Warning: your recent messages were flagged for %s (strike %d).", action.Reason, action.ViolationCount))
	case antispam.ActionDelete:
		return true, e.deleteWithNotice(msg, action)
	case antispam.ActionTimeout:
		minutes := e.cfg.TimeoutMinutes
		if minutes <= 0 {
			minutes = 10
		}
		until := e.now().Add(time.Duration(minutes) * time.Minute)
		if err := e.mod.Timeout(msg.GuildID, msg.AuthorID, until); err != nil {
			return true, fmt.Errorf("timeout: %w", err)
		}
		return true, e.dm(msg.AuthorID, fmt.Sprintf("You have been timed out for %d minutes: %s.", minutes, action.Reason))
	case antispam.ActionKick:
		// the DM has to go out while the member still shares a guild with the bot
		dmErr := e.dm(msg.AuthorID, fmt.Sprintf("You have been removed from the server: %s.", action.Reason))
		if err := e.mod.Kick(msg.GuildID, msg.AuthorID, "spam: "+action.Reason); err != nil {
			return true, errors.Join(fmt.Errorf("kick: %w", err), dmErr)
		}
		return true, dmErr
	default:
		return false, nil
	}
}

func (e *Executor) dm(userID, content string) error {
	if !e.cfg.DMWarnEnabled {
		return nil
	}
	if err := e.mod.SendDM(userID, content); err != nil {
		return fmt.Errorf("dm: %w", err)
	}
	return nil
}

func (e *Executor) deleteWithNotice(msg antispam.Message, action antispam.Action) error {
	if msg.MessageID == "" || msg.ChannelID == "" {
		return errors.New("delete: message context missing")
	}
	if err := e.mod.DeleteMessage(msg.ChannelID, msg.MessageID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	noticeID, err := e.mod.SendMessage(msg.ChannelID, fmt.Sprintf("<@%s> your message was removed: %s.", msg.AuthorID, action.Reason))
	if err != nil {
		return fmt.Errorf("notice: %w", err)
	}
	if e.cfg.NoticeSeconds > 0 && noticeID != "" {
		channelID := msg.ChannelID
		e.afterFunc(time.Duration(e.cfg.NoticeSeconds)*time.Second, func() {
			_ = e.mod.DeleteMessage(channelID, noticeID)
		})
	}
	return nil
}
