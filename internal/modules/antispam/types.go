package antispam

import (
	"time"

	"spamguard/internal/utils"
)

type ActionKind string

const (
	ActionNone    ActionKind = "none"
	ActionWarn    ActionKind = "warn"
	ActionDelete  ActionKind = "delete"
	ActionTimeout ActionKind = "timeout"
	ActionKick    ActionKind = "kick"
)

const (
	ReasonMassMention   = "mass mention"
	ReasonFlood         = "message flood"
	ReasonMentionSpam   = "mention spam"
	ReasonDuplicate     = "duplicate/near-duplicate content"
	ReasonNearDuplicate = "near-duplicate spam pattern"
	ReasonNewAccount    = "new-account policy violation"
)

const maxDetailsLength = 200

// Settings is the per-guild configuration snapshot for one detection call.
type Settings struct {
	Enabled           bool
	SpamLimit         int
	TimeWindowSeconds int
	LinkBlock         bool
	MentionLimit      int
	NewUserMinutes    int
	ExceptionKeywords []string
}

// Message is one inbound chat message as seen by the detector.
type Message struct {
	GuildID          string
	ChannelID        string
	MessageID        string
	AuthorID         string
	Content          string
	UserMentions     int
	RoleMentions     int
	MentionEveryone  bool
	AccountCreatedAt time.Time
	// JoinedAt is nil when the join date is unknown; account age is used instead.
	JoinedAt  *time.Time
	Timestamp time.Time
}

func (m Message) mentions() utils.MentionInfo {
	return utils.MentionInfo{
		Content:         m.Content,
		UserMentions:    m.UserMentions,
		RoleMentions:    m.RoleMentions,
		MentionEveryone: m.MentionEveryone,
	}
}

// Action is the outcome of a triggered rule.
type Action struct {
	Kind           ActionKind
	Reason         string
	Details        string
	ViolationCount int
}

// EscalationFor maps a cumulative strike count to an action.
func EscalationFor(count int) ActionKind {
	switch {
	case count <= 1:
		return ActionWarn
	case count == 2:
		return ActionDelete
	case count == 3:
		return ActionTimeout
	default:
		return ActionKick
	}
}
