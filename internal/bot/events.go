package bot

import (
	"time"

	"spamguard/internal/modules/antispam"

	"github.com/bwmarrin/discordgo"
)

// privilegedPermissions exempt a member from spam checks.
const privilegedPermissions = discordgo.PermissionAdministrator |
	discordgo.PermissionManageServer |
	discordgo.PermissionManageMessages |
	discordgo.PermissionKickMembers

// messageFromEvent converts a gateway message. It returns false for bots,
// webhooks and direct messages.
func messageFromEvent(m *discordgo.Message, member *discordgo.Member) (antispam.Message, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.WebhookID != "" || m.GuildID == "" {
		return antispam.Message{}, false
	}

	msg := antispam.Message{
		GuildID:         m.GuildID,
		ChannelID:       m.ChannelID,
		MessageID:       m.ID,
		AuthorID:        m.Author.ID,
		Content:         m.Content,
		UserMentions:    len(m.Mentions),
		RoleMentions:    len(m.MentionRoles),
		MentionEveryone: m.MentionEveryone,
		Timestamp:       m.Timestamp,
	}
	if created, err := discordgo.SnowflakeTimestamp(m.Author.ID); err == nil {
		msg.AccountCreatedAt = created
	}
	if member == nil {
		member = m.Member
	}
	if member != nil && !member.JoinedAt.IsZero() {
		joined := member.JoinedAt
		msg.JoinedAt = &joined
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg, true
}

// memberPermissions folds the @everyone role and the member's roles into
// one guild-level permission set.
func memberPermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if guild == nil || member == nil {
		return 0
	}
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
	}
	perms := int64(0)
	if everyone := roleMap[guild.ID]; everyone != nil {
		perms |= everyone.Permissions
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	return perms
}

func isPrivileged(guild *discordgo.Guild, member *discordgo.Member, userID string) bool {
	if guild != nil && guild.OwnerID != "" && guild.OwnerID == userID {
		return true
	}
	return memberPermissions(guild, member)&privilegedPermissions != 0
}
