package antispam

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"spamguard/internal/strikes"
	"spamguard/internal/utils"

	"go.uber.org/zap"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newDetector(t *testing.T) *Detector {
	t.Helper()
	history, err := utils.NewHistoryStore(0)
	if err != nil {
		t.Fatalf("history store: %v", err)
	}
	tracker, err := strikes.NewTracker(strikes.Config{})
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	tracker.WithClock(&fakeClock{now: base})
	return New(history, tracker, zap.NewNop())
}

func defaultSettings() Settings {
	return Settings{
		Enabled:           true,
		SpamLimit:         5,
		TimeWindowSeconds: 7,
		LinkBlock:         true,
		MentionLimit:      5,
		NewUserMinutes:    10,
		ExceptionKeywords: []string{"공지", "announcement"},
	}
}

func message(author, content string, at time.Time) Message {
	return Message{
		GuildID:          "g1",
		ChannelID:        "c1",
		MessageID:        fmt.Sprintf("m-%d", at.UnixNano()),
		AuthorID:         author,
		Content:          content,
		AccountCreatedAt: base.Add(-365 * 24 * time.Hour),
		Timestamp:        at,
	}
}

var distinct = []string{
	"good morning everyone",
	"did anybody watch the match yesterday?",
	"I think the patch notes are out",
	"lunch was great, pizza again",
	"who wants to queue later tonight",
	"my cat knocked over the plant",
	"release is scheduled for friday",
	"weather looks rainy this weekend",
	"new keyboard arrived finally",
	"brb, meeting in five",
}

func TestFloodOnSixthMessage(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	for i := 0; i < 5; i++ {
		msg := message("u1", distinct[i], base.Add(time.Duration(i)*time.Second))
		if action, flagged := d.RegisterMessage(context.Background(), msg, settings); flagged {
			t.Fatalf("message %d: unexpected flag %+v", i, action)
		}
	}
	action, flagged := d.RegisterMessage(context.Background(), message("u1", distinct[5], base.Add(6*time.Second)), settings)
	if !flagged {
		t.Fatalf("expected flood on 6th message")
	}
	if action.Reason != ReasonFlood || action.ViolationCount != 1 || action.Kind != ActionWarn {
		t.Fatalf("unexpected action %+v", action)
	}
}

func TestFloodWindowExpires(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	for i := 0; i < 10; i++ {
		msg := message("u1", distinct[i], base.Add(time.Duration(i)*2*time.Second))
		if action, flagged := d.RegisterMessage(context.Background(), msg, settings); flagged {
			t.Fatalf("message %d: unexpected flag %+v", i, action)
		}
	}
}

func TestMassMentionForcesTimeout(t *testing.T) {
	d := newDetector(t)
	action, flagged := d.RegisterMessage(context.Background(), message("u1", "@everyone look at this", base), defaultSettings())
	if !flagged {
		t.Fatalf("expected mass mention flag")
	}
	if action.Reason != ReasonMassMention || action.Kind != ActionTimeout || action.ViolationCount != 1 {
		t.Fatalf("unexpected action %+v", action)
	}
}

func TestMassMentionStructuralFlag(t *testing.T) {
	d := newDetector(t)
	msg := message("u1", "hi all", base)
	msg.MentionEveryone = true
	action, flagged := d.RegisterMessage(context.Background(), msg, defaultSettings())
	if !flagged || action.Reason != ReasonMassMention {
		t.Fatalf("expected mass mention, got %+v (flagged=%v)", action, flagged)
	}
}

func TestMassMentionBeatsFlood(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	for i := 0; i < 5; i++ {
		d.RegisterMessage(context.Background(), message("u1", distinct[i], base.Add(time.Duration(i)*time.Second)), settings)
	}
	action, flagged := d.RegisterMessage(context.Background(), message("u1", "@here", base.Add(5*time.Second)), settings)
	if !flagged || action.Reason != ReasonMassMention || action.Kind != ActionTimeout {
		t.Fatalf("expected mass mention to take priority, got %+v", action)
	}
}

func TestMentionSpam(t *testing.T) {
	d := newDetector(t)
	msg := message("u1", "hey folks", base)
	msg.UserMentions = 3
	msg.RoleMentions = 2
	action, flagged := d.RegisterMessage(context.Background(), msg, defaultSettings())
	if !flagged || action.Reason != ReasonMentionSpam {
		t.Fatalf("expected mention spam, got %+v (flagged=%v)", action, flagged)
	}

	settings := defaultSettings()
	settings.MentionLimit = 0
	msg.AuthorID = "u2"
	if action, flagged := d.RegisterMessage(context.Background(), msg, settings); flagged {
		t.Fatalf("mention limit 0 disables the rule, got %+v", action)
	}
}

func TestNearDuplicatePattern(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	contents := []string{
		"l1m1t3d 0ffer click here today",
		"limited offer cl1ck h3r3 t0day",
		"limit3d off3r click her3 tod4y",
	}
	for i, content := range contents {
		if action, flagged := d.RegisterMessage(context.Background(), message("u1", content, base.Add(time.Duration(i)*time.Second)), settings); flagged {
			t.Fatalf("message %d: unexpected flag %+v", i, action)
		}
	}
	action, flagged := d.RegisterMessage(context.Background(), message("u1", "limited offer click here today", base.Add(3*time.Second)), settings)
	if !flagged {
		t.Fatalf("expected near-duplicate flag")
	}
	if action.Reason != ReasonNearDuplicate || action.Kind != ActionWarn {
		t.Fatalf("unexpected action %+v", action)
	}
}

func TestExceptionKeywordSuppressesNearDuplicate(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	contents := []string{
		"공지 l1m1t3d 0ffer click here today",
		"공지 limited offer cl1ck h3r3 t0day",
		"공지 limit3d off3r click her3 tod4y",
		"공지 limited offer click here today",
	}
	for i, content := range contents {
		if action, flagged := d.RegisterMessage(context.Background(), message("u1", content, base.Add(time.Duration(i)*time.Second)), settings); flagged {
			t.Fatalf("message %d: unexpected flag %+v", i, action)
		}
	}
}

func TestDuplicateTakesPriorityOverNearDuplicate(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	contents := []string{"buy crypto now!!", "buy crypto now !", "Buy Crypto Now!", "buy  crypto now"}

	var reasons []string
	for i, content := range contents {
		action, flagged := d.RegisterMessage(context.Background(), message("u1", content, base.Add(time.Duration(i)*time.Second)), settings)
		if flagged {
			reasons = append(reasons, action.Reason)
		}
	}
	if len(reasons) != 2 {
		t.Fatalf("expected the 3rd and 4th messages flagged, got %v", reasons)
	}
	for _, reason := range reasons {
		if reason != ReasonDuplicate {
			t.Fatalf("expected duplicate reason, got %q", reason)
		}
	}
}

func TestNewMemberPolicy(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()

	msg := message("u1", "check https://example.com", base)
	msg.AccountCreatedAt = base.Add(-2 * time.Minute)
	action, flagged := d.RegisterMessage(context.Background(), msg, settings)
	if !flagged || action.Reason != ReasonNewAccount {
		t.Fatalf("expected new-account flag, got %+v (flagged=%v)", action, flagged)
	}

	joined := base.Add(-time.Minute)
	msg = message("u2", "join discord.gg/abc", base)
	msg.JoinedAt = &joined
	action, flagged = d.RegisterMessage(context.Background(), msg, settings)
	if !flagged || action.Reason != ReasonNewAccount {
		t.Fatalf("expected recent join flag, got %+v (flagged=%v)", action, flagged)
	}

	msg = message("u3", "hello there", base)
	msg.AccountCreatedAt = base.Add(-2 * time.Minute)
	if action, flagged := d.RegisterMessage(context.Background(), msg, settings); flagged {
		t.Fatalf("plain message from a new account should pass, got %+v", action)
	}
}

func TestEscalationLadder(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	want := []ActionKind{ActionWarn, ActionDelete, ActionTimeout, ActionKick, ActionKick}
	for i, kind := range want {
		msg := message("u1", "hi", base.Add(time.Duration(i)*time.Minute))
		msg.UserMentions = 5
		action, flagged := d.RegisterMessage(context.Background(), msg, settings)
		if !flagged {
			t.Fatalf("strike %d: expected flag", i+1)
		}
		if action.ViolationCount != i+1 || action.Kind != kind {
			t.Fatalf("strike %d: expected %s, got %+v", i+1, kind, action)
		}
	}
	if got := d.Strikes("g1", "u1"); got != 5 {
		t.Fatalf("expected 5 strikes, got %d", got)
	}
}

func TestResetUserRestartsEscalation(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	msg := message("u1", "hi", base)
	msg.UserMentions = 6
	d.RegisterMessage(context.Background(), msg, settings)
	d.RegisterMessage(context.Background(), msg, settings)

	d.ResetUser("g1", "u1")
	if got := d.Strikes("g1", "u1"); got != 0 {
		t.Fatalf("expected 0 strikes after reset, got %d", got)
	}
	action, flagged := d.RegisterMessage(context.Background(), msg, settings)
	if !flagged || action.ViolationCount != 1 || action.Kind != ActionWarn {
		t.Fatalf("expected fresh warn, got %+v", action)
	}
}

func TestDisabledSettingsLeaveStateUntouched(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	settings.Enabled = false
	if _, flagged := d.RegisterMessage(context.Background(), message("u1", "@everyone", base), settings); flagged {
		t.Fatalf("disabled guild must not flag")
	}
	if d.history.Len() != 0 {
		t.Fatalf("disabled guild must not record history, len=%d", d.history.Len())
	}
}

func TestInvalidInputIgnored(t *testing.T) {
	d := newDetector(t)
	msg := message("", "@everyone", base)
	if _, flagged := d.RegisterMessage(context.Background(), msg, defaultSettings()); flagged {
		t.Fatalf("message without author must be ignored")
	}
	msg = message("u1", "@everyone", base)
	msg.GuildID = ""
	if _, flagged := d.RegisterMessage(context.Background(), msg, defaultSettings()); flagged {
		t.Fatalf("message without guild must be ignored")
	}
	if d.history.Len() != 0 {
		t.Fatalf("invalid input must not record history")
	}
}

func TestDetailsTruncated(t *testing.T) {
	d := newDetector(t)
	long := "@everyone "
	for len([]rune(long)) < 300 {
		long += "spam "
	}
	action, flagged := d.RegisterMessage(context.Background(), message("u1", long, base), defaultSettings())
	if !flagged {
		t.Fatalf("expected flag")
	}
	if n := len([]rune(action.Details)); n > maxDetailsLength {
		t.Fatalf("details not truncated: %d runes", n)
	}
}

func TestZeroTimestampUsesClock(t *testing.T) {
	d := newDetector(t)
	clock := &fakeClock{now: base}
	d.WithClock(clock)
	settings := defaultSettings()
	for i := 0; i < 6; i++ {
		msg := message("u1", distinct[i], time.Time{})
		action, flagged := d.RegisterMessage(context.Background(), msg, settings)
		if i < 5 && flagged {
			t.Fatalf("message %d: unexpected flag %+v", i, action)
		}
		if i == 5 && (!flagged || action.Reason != ReasonFlood) {
			t.Fatalf("expected flood on clock-stamped messages, got %+v", action)
		}
	}
}

func TestConcurrentMessagesSameMember(t *testing.T) {
	d := newDetector(t)
	settings := defaultSettings()
	settings.SpamLimit = 1000
	settings.MentionLimit = 1

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := message("u1", fmt.Sprintf("ping %d", i), base.Add(time.Duration(i)*time.Millisecond))
			msg.UserMentions = 1
			d.RegisterMessage(context.Background(), msg, settings)
		}(i)
	}
	wg.Wait()
	if got := d.Strikes("g1", "u1"); got != 40 {
		t.Fatalf("expected 40 strikes, got %d", got)
	}
}
