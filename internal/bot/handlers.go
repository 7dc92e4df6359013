package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spamguard/internal/config"
	"spamguard/internal/modules/audit"
	"spamguard/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const spamLogLimit = 5

type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) commandOptions {
	out := make(commandOptions, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

// id reads a user or channel option, which arrives as a snowflake string.
func (o commandOptions) id(name string) string {
	opt := o[name]
	if opt == nil {
		return ""
	}
	value, _ := opt.Value.(string)
	return value
}

func (o commandOptions) str(name string) (string, bool) {
	opt := o[name]
	if opt == nil || opt.Type != discordgo.ApplicationCommandOptionString {
		return "", false
	}
	return opt.StringValue(), true
}

func (o commandOptions) integer(name string) (int, bool) {
	opt := o[name]
	if opt == nil || opt.Type != discordgo.ApplicationCommandOptionInteger {
		return 0, false
	}
	return int(opt.IntValue()), true
}

func (o commandOptions) boolean(name string) (bool, bool) {
	opt := o[name]
	if opt == nil || opt.Type != discordgo.ApplicationCommandOptionBoolean {
		return false, false
	}
	return opt.BoolValue(), true
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := interaction.ApplicationCommandData()

	var embed *discordgo.MessageEmbed
	switch {
	case interaction.GuildID == "":
		embed = commandEmbed("Spam filter", "This command only works inside a server.", colorWarning, nil)
	case interaction.Member == nil || interaction.Member.Permissions&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) == 0:
		embed = commandEmbed("Spam filter", "You need the Manage Server permission.", colorWarning, nil)
	default:
		embed = b.runCommand(context.Background(), interaction.GuildID, data.Name, optionMap(data.Options))
	}
	respondEmbed(session, interaction, embed)
}

func (b *Bot) runCommand(ctx context.Context, guildID, name string, opts commandOptions) *discordgo.MessageEmbed {
	switch name {
	case "spamstatus":
		return b.statusEmbed(ctx, guildID)
	case "spamlog":
		return b.spamLogCommand(ctx, guildID, opts)
	case "forgive":
		return b.forgiveCommand(ctx, guildID, opts)
	case "spamconfig":
		return b.configCommand(ctx, guildID, opts)
	case "spamreport":
		return b.reportCommand(ctx, guildID, opts)
	default:
		return commandEmbed("Spam filter", "Unknown command.", colorWarning, nil)
	}
}

func (b *Bot) statusEmbed(ctx context.Context, guildID string) *discordgo.MessageEmbed {
	settings := b.guildSettings(ctx, guildID)
	keywords := strings.Join(settings.ExceptionKeywords, ", ")
	logChannel := "-"
	if settings.LogChannelID != "" {
		logChannel = "<#" + settings.LogChannelID + ">"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Enabled", Value: fmt.Sprintf("%t", settings.Enabled), Inline: true},
		{Name: "Spam limit", Value: fmt.Sprintf("%d messages / %ds", settings.SpamLimit, settings.TimeWindowSeconds), Inline: true},
		{Name: "Mention limit", Value: fmt.Sprintf("%d", settings.MentionLimit), Inline: true},
		{Name: "Link block", Value: fmt.Sprintf("%t", settings.LinkBlock), Inline: true},
		{Name: "New member window", Value: fmt.Sprintf("%d min", settings.NewUserMinutes), Inline: true},
		{Name: "Mode", Value: b.cfg.Mode, Inline: true},
		{Name: "Exception keywords", Value: orDash(keywords), Inline: false},
		{Name: "Log channel", Value: logChannel, Inline: true},
	}
	return commandEmbed("Spam filter status", "", colorInfo, fields)
}

func (b *Bot) spamLogCommand(ctx context.Context, guildID string, opts commandOptions) *discordgo.MessageEmbed {
	userID := opts.id("member")
	if userID == "" {
		return commandEmbed("Spam log", "Pick a member.", colorWarning, nil)
	}
	entries, err := b.audit.History(ctx, guildID, userID, spamLogLimit)
	if err != nil {
		b.logger.Warn("spam log lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return commandEmbed("Spam log", "Could not load the log.", colorWarning, nil)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Current strikes", Value: fmt.Sprintf("%d", b.detector.Strikes(guildID, userID)), Inline: true},
	}
	if len(entries) == 0 {
		return commandEmbed("Spam log", fmt.Sprintf("No entries for <@%s>.", userID), colorInfo, fields)
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("<t:%d:R> **%s** %s (+%d)", entry.CreatedAt.Unix(), entry.Action, orDash(entry.Reason), entry.Points))
	}
	return commandEmbed("Spam log", fmt.Sprintf("Recent entries for <@%s>\n%s", userID, strings.Join(lines, "\n")), colorInfo, fields)
}

func (b *Bot) forgiveCommand(ctx context.Context, guildID string, opts commandOptions) *discordgo.MessageEmbed {
	userID := opts.id("member")
	if userID == "" {
		return commandEmbed("Forgive", "Pick a member.", colorWarning, nil)
	}
	reason, _ := opts.str("reason")
	if reason == "" {
		reason = "strikes reset by a moderator"
	}
	before := b.detector.Strikes(guildID, userID)
	b.detector.ResetUser(guildID, userID)
	b.audit.LogViolation(ctx, audit.Entry{
		GuildID: guildID,
		UserID:  userID,
		Reason:  reason,
		Action:  audit.ActionForgive,
		Details: fmt.Sprintf("previous strikes: %d", before),
	})
	fields := []*discordgo.MessageEmbedField{
		{Name: "Member", Value: "<@" + userID + ">", Inline: true},
		{Name: "Previous strikes", Value: fmt.Sprintf("%d", before), Inline: true},
	}
	return commandEmbed("Forgive", "Strikes reset.", colorAction, fields)
}

func (b *Bot) configCommand(ctx context.Context, guildID string, opts commandOptions) *discordgo.MessageEmbed {
	settings := b.guildSettings(ctx, guildID)
	changed := 0
	if v, ok := opts.boolean("enabled"); ok {
		settings.Enabled = v
		changed++
	}
	if v, ok := opts.integer("spam_limit"); ok && v >= 1 {
		settings.SpamLimit = v
		changed++
	}
	if v, ok := opts.integer("time_window"); ok && v >= 1 {
		settings.TimeWindowSeconds = v
		changed++
	}
	if v, ok := opts.boolean("link_block"); ok {
		settings.LinkBlock = v
		changed++
	}
	if v, ok := opts.integer("mention_limit"); ok && v >= 0 {
		settings.MentionLimit = v
		changed++
	}
	if v, ok := opts.integer("new_user_minutes"); ok && v >= 0 {
		settings.NewUserMinutes = v
		changed++
	}
	if v, ok := opts.str("exception_keywords"); ok {
		settings.ExceptionKeywords = config.SplitKeywords(v)
		changed++
	}
	if v := opts.id("log_channel"); v != "" {
		settings.LogChannelID = v
		changed++
	}
	if changed == 0 {
		return b.statusEmbed(ctx, guildID)
	}

	settings.UpdatedAt = time.Now()
	if err := b.saveGuildSettings(ctx, settings); err != nil {
		b.logger.Warn("settings update failed", zap.String("guild_id", guildID), zap.Error(err))
		return commandEmbed("Spam filter", "Could not save the settings.", colorWarning, nil)
	}
	b.logger.Info("settings updated", zap.String("guild_id", guildID), zap.Int("fields", changed))
	return b.statusEmbed(ctx, guildID)
}

func (b *Bot) reportCommand(ctx context.Context, guildID string, opts commandOptions) *discordgo.MessageEmbed {
	period, _ := opts.str("period")
	window := 24 * time.Hour
	if period == "week" {
		window = 7 * 24 * time.Hour
	} else {
		period = "day"
	}
	report, err := b.analytics.Report(ctx, guildID, time.Now().Add(-window))
	if err != nil {
		b.logger.Warn("report failed", zap.String("guild_id", guildID), zap.Error(err))
		return commandEmbed("Spam report", "Could not build the report.", colorWarning, nil)
	}
	board, err := b.analytics.Leaderboard(ctx, guildID, 5)
	if err != nil {
		b.logger.Warn("leaderboard failed", zap.String("guild_id", guildID), zap.Error(err))
	}

	actions := make([]string, 0, len(report.ByAction))
	for _, kind := range []string{audit.ActionWarn, audit.ActionDelete, audit.ActionTimeout, audit.ActionKick, audit.ActionBan, audit.ActionForgive} {
		if n := report.ByAction[kind]; n > 0 {
			actions = append(actions, fmt.Sprintf("%s: %d", kind, n))
		}
	}
	top := make([]string, 0, len(board))
	for i, entry := range board {
		top = append(top, fmt.Sprintf("%d. <@%s> %d pts (%d entries)", i+1, entry.UserID, entry.Points, entry.Entries))
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Entries", Value: fmt.Sprintf("%d", report.Total), Inline: true},
		{Name: "Points", Value: fmt.Sprintf("%d", report.Points), Inline: true},
		{Name: "Members", Value: fmt.Sprintf("%d", report.Members), Inline: true},
		{Name: "Actions", Value: orDash(strings.Join(actions, "\n")), Inline: false},
		{Name: "Top offenders", Value: orDash(utils.Truncate(strings.Join(top, "\n"), 1000)), Inline: false},
	}
	return commandEmbed("Spam report", "Period: "+period, colorInfo, fields)
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}
