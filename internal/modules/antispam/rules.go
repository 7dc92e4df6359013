package antispam

import (
	"time"

	"spamguard/internal/utils"
)

const (
	duplicateThreshold     = 0.9
	nearDuplicateThreshold = 0.85
	newMemberMentions      = 2
)

// evaluation is the input shared by every rule for one message.
type evaluation struct {
	msg      Message
	settings Settings
	history  []utils.MessageRecord
	mentions int
	hasLink  bool
	now      time.Time
}

type rule struct {
	name   string
	reason string
	// forced overrides the escalation table when set
	forced ActionKind
	match  func(e *evaluation) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{name: "mass_mention", reason: ReasonMassMention, forced: ActionTimeout, match: matchMassMention},
	{name: "flood", reason: ReasonFlood, match: matchFlood},
	{name: "mention_spam", reason: ReasonMentionSpam, match: matchMentionSpam},
	{name: "duplicate", reason: ReasonDuplicate, match: matchDuplicate},
	{name: "near_duplicate", reason: ReasonNearDuplicate, match: matchNearDuplicate},
	{name: "new_member", reason: ReasonNewAccount, match: matchNewMember},
}

func firstMatch(e *evaluation) (rule, bool) {
	for _, r := range rules {
		if r.match(e) {
			return r, true
		}
	}
	return rule{}, false
}

func matchMassMention(e *evaluation) bool {
	return utils.HasMassMention(e.msg.mentions())
}

func matchFlood(e *evaluation) bool {
	return len(e.history) > e.settings.SpamLimit
}

func matchMentionSpam(e *evaluation) bool {
	return e.settings.MentionLimit > 0 && e.mentions >= e.settings.MentionLimit
}

func matchDuplicate(e *evaluation) bool {
	return similarRecent(e.history, 3, duplicateThreshold) >= 2
}

func matchNearDuplicate(e *evaluation) bool {
	if utils.ContainsKeyword(e.msg.Content, e.settings.ExceptionKeywords) {
		return false
	}
	return similarRecent(e.history, 4, nearDuplicateThreshold) >= 2
}

func matchNewMember(e *evaluation) bool {
	minAge := time.Duration(e.settings.NewUserMinutes) * time.Minute
	accountAge := e.now.Sub(e.msg.AccountCreatedAt)
	joinAge := accountAge
	if e.msg.JoinedAt != nil {
		joinAge = e.now.Sub(*e.msg.JoinedAt)
	}
	if accountAge >= minAge && joinAge >= minAge {
		return false
	}
	return e.hasLink || e.mentions >= newMemberMentions || len(e.history) >= e.settings.SpamLimit
}

// similarRecent compares the newest record with the previous window-1
// records and returns how many reach threshold. Zero when the history is
// shorter than window.
func similarRecent(history []utils.MessageRecord, window int, threshold float64) int {
	if len(history) < window {
		return 0
	}
	recent := history[len(history)-window:]
	target := recent[window-1].Normalized
	hits := 0
	for _, r := range recent[:window-1] {
		if utils.Similarity(target, r.Normalized) >= threshold {
			hits++
		}
	}
	return hits
}
