package bot

import "github.com/bwmarrin/discordgo"

var manageGuild = int64(discordgo.PermissionManageServer)

func commandDefinitions() []*discordgo.ApplicationCommand {
	dmAllowed := false
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "spamstatus",
			Description:              "Show the spam filter settings of this server",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
		},
		{
			Name:                     "spamlog",
			Description:              "Show recent moderation entries for a member",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Member to inspect",
					Required:    true,
				},
			},
		},
		{
			Name:                     "forgive",
			Description:              "Reset a member's spam strikes",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Member to forgive",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Why the strikes are reset",
					Required:    false,
				},
			},
		},
		{
			Name:                     "spamconfig",
			Description:              "Change the spam filter settings",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Turn the filter on or off"},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "spam_limit", Description: "Messages allowed per window", MinValue: floatPtr(1), MaxValue: 50},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "time_window", Description: "Window length in seconds", MinValue: floatPtr(1), MaxValue: 300},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "link_block", Description: "Block links from new members"},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "mention_limit", Description: "Mentions per message (0 disables)", MinValue: floatPtr(0), MaxValue: 50},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "new_user_minutes", Description: "Minutes a member counts as new", MinValue: floatPtr(0), MaxValue: 10080},
				{Type: discordgo.ApplicationCommandOptionString, Name: "exception_keywords", Description: "Comma separated keywords exempt from pattern checks"},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "log_channel", Description: "Channel receiving moderation logs"},
			},
		},
		{
			Name:                     "spamreport",
			Description:              "Summarize recent moderation activity",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "period",
					Description: "day or week",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "day", Value: "day"},
						{Name: "week", Value: "week"},
					},
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	if b.session == nil || b.session.State == nil || b.session.State.User == nil {
		return nil
	}
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, "", commandDefinitions())
	return err
}

func floatPtr(v float64) *float64 {
	return &v
}
