package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"spamguard/internal/analytics"
	"spamguard/internal/config"
	"spamguard/internal/modules/antispam"
	"spamguard/internal/modules/audit"
	"spamguard/internal/storage"
	"spamguard/internal/strikes"
	"spamguard/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type call struct {
	kind    string
	channel string
	target  string
	content string
}

type fakeModerator struct {
	mu      sync.Mutex
	calls   []call
	embeds  []*discordgo.MessageEmbed
	failDM  bool
	failOps bool
}

func (f *fakeModerator) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeModerator) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.kind)
	}
	return out
}

func (f *fakeModerator) SendDM(userID, content string) error {
	f.record(call{kind: "dm", target: userID, content: content})
	if f.failDM {
		return errors.New("dm closed")
	}
	return nil
}

func (f *fakeModerator) SendMessage(channelID, content string) (string, error) {
	f.record(call{kind: "send", channel: channelID, content: content})
	if f.failOps {
		return "", errors.New("missing access")
	}
	return "notice-1", nil
}

func (f *fakeModerator) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	f.embeds = append(f.embeds, embed)
	f.mu.Unlock()
	f.record(call{kind: "embed", channel: channelID})
	return nil
}

func (f *fakeModerator) DeleteMessage(channelID, messageID string) error {
	f.record(call{kind: "delete", channel: channelID, target: messageID})
	if f.failOps {
		return errors.New("missing access")
	}
	return nil
}

func (f *fakeModerator) Timeout(guildID, userID string, until time.Time) error {
	f.record(call{kind: "timeout", target: userID, content: until.Format(time.RFC3339)})
	if f.failOps {
		return errors.New("missing permissions")
	}
	return nil
}

func (f *fakeModerator) Kick(guildID, userID, reason string) error {
	f.record(call{kind: "kick", target: userID, content: reason})
	if f.failOps {
		return errors.New("missing permissions")
	}
	return nil
}

type harness struct {
	bot   *Bot
	mod   *fakeModerator
	store *storage.Store
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DiscordToken = "token"
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	history, err := utils.NewHistoryStore(cfg.History.MaxMembers)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	tracker, err := strikes.NewTracker(strikes.Config{DecayPeriod: time.Duration(cfg.Strikes.DecayHours) * time.Hour})
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	detector := antispam.New(history, tracker, zap.NewNop())
	mod := &fakeModerator{}
	b := newBot(cfg, zap.NewNop(), store, detector, audit.NewLogger(store, zap.NewNop()), analytics.New(store), mod)
	b.executor.afterFunc = func(time.Duration, func()) {}
	return &harness{bot: b, mod: mod, store: store}
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func chatMessage(userID, content string, at time.Time) antispam.Message {
	return antispam.Message{
		GuildID:          "g1",
		ChannelID:        "c1",
		MessageID:        "m-" + at.Format("150405.000"),
		AuthorID:         userID,
		Content:          content,
		AccountCreatedAt: base.AddDate(-1, 0, 0),
		Timestamp:        at,
	}
}

func TestHandleMessageMassMentionTimesOut(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, flagged := h.bot.handleMessage(ctx, chatMessage("u1", "hello", base)); flagged {
		t.Fatalf("plain message must pass")
	}
	action, flagged := h.bot.handleMessage(ctx, chatMessage("u1", "@everyone free nitro", base.Add(time.Second)))
	if !flagged || action.Kind != antispam.ActionTimeout {
		t.Fatalf("expected timeout, got %+v", action)
	}
	got := h.mod.kinds()
	if len(got) != 2 || got[0] != "timeout" || got[1] != "dm" {
		t.Fatalf("unexpected moderator calls %v", got)
	}

	logs, err := h.store.ListUserHistory(ctx, "g1", "u1", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(logs) != 1 || logs[0].Points != 3 || logs[0].Reason != antispam.ReasonMassMention {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

func TestHandleMessageAuditModeSimulates(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Mode = "audit" })
	ctx := context.Background()

	if _, flagged := h.bot.handleMessage(ctx, chatMessage("u1", "@here", base)); !flagged {
		t.Fatalf("expected flag")
	}
	if calls := h.mod.kinds(); len(calls) != 0 {
		t.Fatalf("audit mode must not touch discord, got %v", calls)
	}
	logs, _ := h.store.ListUserHistory(ctx, "g1", "u1", 5)
	if len(logs) != 1 || !strings.HasPrefix(logs[0].Details, "[simulated]") {
		t.Fatalf("expected simulated log entry, got %+v", logs)
	}
}

func TestHandleMessageSurvivesExecutorFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.mod.failOps = true
	ctx := context.Background()

	action, flagged := h.bot.handleMessage(ctx, chatMessage("u1", "@everyone", base))
	if !flagged || action.ViolationCount != 1 {
		t.Fatalf("detection must not depend on the executor, got %+v", action)
	}
	logs, _ := h.store.ListUserHistory(ctx, "g1", "u1", 5)
	if len(logs) != 1 {
		t.Fatalf("expected log entry despite executor failure")
	}
}

func TestHandleMessageDisabledGuild(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	settings := h.bot.defaultSettings("g1")
	settings.Enabled = false
	if err := h.bot.saveGuildSettings(ctx, settings); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, flagged := h.bot.handleMessage(ctx, chatMessage("u1", "@everyone", base)); flagged {
		t.Fatalf("disabled guild must not flag")
	}
}

func TestLogChannelNotified(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.LogChannelID = "logs" })
	h.bot.recordBan(context.Background(), "g1", "u9")

	h.mod.mu.Lock()
	defer h.mod.mu.Unlock()
	if len(h.mod.embeds) != 1 {
		t.Fatalf("expected one log embed, got %d", len(h.mod.embeds))
	}
	if h.mod.calls[0].channel != "logs" {
		t.Fatalf("expected embed in log channel, got %q", h.mod.calls[0].channel)
	}
	logs, _ := h.store.ListActionLogs(context.Background(), "g1", audit.ActionBan, 5)
	if len(logs) != 1 || logs[0].Points != 5 || logs[0].UserID != "u9" {
		t.Fatalf("unexpected ban log %+v", logs)
	}
}

func TestSettingsCacheInvalidatedOnSave(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.SettingsCacheSeconds = 3600 })
	ctx := context.Background()

	first := h.bot.guildSettings(ctx, "g1")
	if first.SpamLimit != 5 {
		t.Fatalf("expected default spam limit, got %d", first.SpamLimit)
	}
	first.SpamLimit = 9
	if err := h.bot.saveGuildSettings(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := h.bot.guildSettings(ctx, "g1").SpamLimit; got != 9 {
		t.Fatalf("expected fresh settings after save, got %d", got)
	}
}
