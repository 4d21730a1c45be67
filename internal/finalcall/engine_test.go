package finalcall

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/contest-remind-bot/internal/chat"
	"github.com/flor3z/contest-remind-bot/internal/chat/chattest"
	"github.com/flor3z/contest-remind-bot/internal/clock"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/embed"
	"github.com/flor3z/contest-remind-bot/internal/storage"
)

const (
	guildID     = "guild-1"
	remindAll   = "remind-all"
	remindDiv1  = "remind-div1"
	finalAll    = "final-all"
	emoji       = "✅"
	contestLink = "https://codeforces.com/contest/1"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	repo     *storage.Repository
	clock    *clock.Fake
	platform *chattest.Platform
	store    *storage.Store
	engine   *Engine
	message  string
}

func testContest() contest.Contest {
	return contest.Contest{
		ID:       1,
		Name:     "Codeforces Round 1 (Div. 2)",
		Website:  "codeforces.com",
		Start:    now.Add(2 * time.Hour),
		Duration: 2 * time.Hour,
		URL:      contestLink,
		Prefix:   "CodeForces",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	clk := clock.NewFake(now)
	store := storage.NewStore(repo, clk, time.Hour)
	store.Update(guildID, func(g *storage.GuildSettings) {
		g.Open.SetReminder(remindAll, "role-all", []int{60})
		g.Open.SetFinalCall(finalAll, 5)
		g.Div1.SetReminder(remindDiv1, "role-div1", []int{60})
		g.Div1.SetFinalCall("final-div1", 10)
	})

	platform := chattest.New(guildID)
	f := &fixture{
		ctx:      context.Background(),
		repo:     repo,
		clock:    clk,
		platform: platform,
		store:    store,
		engine:   New(platform, store, clk, emoji),
	}
	f.message = f.postReminder(t, remindAll)
	return f
}

func (f *fixture) postReminder(t *testing.T, channelID string) string {
	t.Helper()
	c := testContest()
	id, err := f.platform.SendMessage(channelID, embed.ReminderContent("role-all", c), embed.Reminder(c, 3600), "role-all")
	require.NoError(t, err)
	require.NoError(t, f.platform.AddReaction(channelID, id, emoji))
	return id
}

func (f *fixture) event(userID string) chat.ReactionEvent {
	return chat.ReactionEvent{
		GuildID:   guildID,
		ChannelID: remindAll,
		MessageID: f.message,
		UserID:    userID,
		Emoji:     emoji,
	}
}

func (f *fixture) add(userID string) {
	f.platform.React(f.message, emoji, 1)
	f.engine.HandleReactionAdd(f.ctx, f.event(userID))
}

func (f *fixture) remove(userID string) {
	f.platform.React(f.message, emoji, -1)
	f.engine.HandleReactionRemove(f.ctx, f.event(userID))
}

func (f *fixture) record(t *testing.T) storage.FinalCall {
	t.Helper()
	rec, ok := f.store.FinalCall(guildID, contest.Open, contestLink)
	require.True(t, ok, "final call record missing")
	return rec
}

func TestEngine_SubscribeAndWithdraw(t *testing.T) {
	f := newFixture(t)

	f.add("user-1")
	rec := f.record(t)
	assert.Equal(t, storage.FinalCallActive, rec.State)
	assert.Equal(t, 5, rec.LeadMinutes)
	assert.Contains(t, rec.RoleName, "Final Call (All) - ")
	assert.Equal(t, 1, f.platform.Holders(rec.RoleID))
	assert.Equal(t, []string{contestLink}, f.engine.Armed(guildID, contest.Open))
	require.Len(t, f.platform.DMs["user-1"], 1)
	assert.Contains(t, f.platform.DMs["user-1"][0], "Final Call Alarm Set")

	f.add("user-2")
	assert.Len(t, f.platform.Roles, 1)
	assert.Equal(t, 2, f.platform.Holders(rec.RoleID))

	f.remove("user-1")
	assert.Equal(t, rec, f.record(t))
	assert.Equal(t, 1, f.platform.Holders(rec.RoleID))
	assert.Contains(t, f.platform.DMs["user-1"][1], "Final Call Alarm Cleared")

	f.remove("user-2")
	_, ok := f.store.FinalCall(guildID, contest.Open, contestLink)
	assert.False(t, ok)
	assert.Equal(t, []string{rec.RoleID}, f.platform.DeletedRoles)
	assert.Empty(t, f.engine.Armed(guildID, contest.Open))
	assert.Zero(t, f.clock.Pending())
}

func TestEngine_PingThenCleanup(t *testing.T) {
	f := newFixture(t)
	f.add("user-1")
	rec := f.record(t)

	f.clock.Advance(2*time.Hour - 5*time.Minute)

	sent := f.platform.SentTo(finalAll)
	require.Len(t, sent, 1)
	assert.Equal(t, "<@&"+rec.RoleID+"> GLHF!", sent[0].Content)
	assert.Equal(t, rec.RoleID, sent[0].MentionRoleID)
	assert.Equal(t, "About to start in 5 mins!", sent[0].Embed.Description)

	fired := f.record(t)
	assert.Equal(t, storage.FinalCallFired, fired.State)
	assert.Equal(t, sent[0].ID, fired.MessageID)
	assert.Equal(t, finalAll, fired.ChannelID)

	// too late to join, and the fired record must not be recreated
	f.add("user-2")
	assert.Equal(t, fired, f.record(t))
	assert.Equal(t, 1, f.platform.Holders(rec.RoleID))

	f.clock.Advance(5 * time.Minute)
	require.Len(t, f.platform.Edits, 1)
	assert.Equal(t, embed.GoodLuck, f.platform.Edits[0].Content)
	assert.Equal(t, sent[0].ID, f.platform.Edits[0].MessageID)
	assert.Equal(t, []string{rec.RoleID}, f.platform.DeletedRoles)
	_, ok := f.store.FinalCall(guildID, contest.Open, contestLink)
	assert.False(t, ok)

	f.add("user-3")
	assert.Empty(t, f.store.FinalCalls(guildID, contest.Open))
	assert.Empty(t, f.platform.Roles)
}

func TestEngine_WithdrawAfterPingKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.add("user-1")
	f.clock.Advance(2*time.Hour - 5*time.Minute)

	f.remove("user-1")
	rec := f.record(t)
	assert.Equal(t, storage.FinalCallFired, rec.State)
	assert.Empty(t, f.platform.DeletedRoles)

	f.clock.Advance(5 * time.Minute)
	assert.Equal(t, []string{rec.RoleID}, f.platform.DeletedRoles)
}

func TestEngine_RestartRecovery(t *testing.T) {
	f := newFixture(t)
	f.add("user-1")
	rec := f.record(t)
	f.engine.Stop()

	clk := clock.NewFake(now.Add(time.Hour))
	store := storage.NewStore(f.repo, clk, time.Hour)
	store.Load(f.ctx)
	engine := New(f.platform, store, clk, emoji)

	engine.Reconcile(guildID)
	assert.Equal(t, []string{contestLink}, engine.Armed(guildID, contest.Open))

	clk.Advance(55 * time.Minute)
	sent := f.platform.SentTo(finalAll)
	require.Len(t, sent, 1)
	assert.Equal(t, "<@&"+rec.RoleID+"> GLHF!", sent[0].Content)

	clk.Advance(5 * time.Minute)
	require.Len(t, f.platform.Edits, 1)
	assert.Equal(t, []string{rec.RoleID}, f.platform.DeletedRoles)

	reloaded := storage.NewStore(f.repo, clk, time.Hour)
	reloaded.Load(f.ctx)
	assert.Empty(t, reloaded.FinalCalls(guildID, contest.Open))
}

func TestEngine_LateRestartPingsImmediately(t *testing.T) {
	f := newFixture(t)
	f.add("user-1")
	f.engine.Stop()

	clk := clock.NewFake(now.Add(2*time.Hour - 2*time.Minute))
	store := storage.NewStore(f.repo, clk, time.Hour)
	store.Load(f.ctx)
	engine := New(f.platform, store, clk, emoji)
	engine.Reconcile(guildID)

	clk.Advance(0)
	assert.Len(t, f.platform.SentTo(finalAll), 1)
}

func TestEngine_ReconcileDropsRecordWithoutRole(t *testing.T) {
	f := newFixture(t)
	f.add("user-1")
	rec := f.record(t)

	require.NoError(t, f.platform.DeleteRole(guildID, rec.RoleID))
	f.engine.Reconcile(guildID)

	assert.Empty(t, f.store.FinalCalls(guildID, contest.Open))
	assert.Empty(t, f.engine.Armed(guildID, contest.Open))

	f.clock.Advance(3 * time.Hour)
	assert.Empty(t, f.platform.SentTo(finalAll))
}

func TestEngine_DMFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	f.platform.FailDMs["user-1"] = true

	f.add("user-1")
	rec := f.record(t)
	assert.Equal(t, 1, f.platform.Holders(rec.RoleID))
	assert.Empty(t, f.platform.DMs["user-1"])
}

func TestEngine_IgnoresIrrelevantReactions(t *testing.T) {
	f := newFixture(t)
	f.platform.Bots["bot-1"] = true

	f.engine.HandleReactionAdd(f.ctx, f.event("bot-1"))

	ev := f.event("user-1")
	ev.Emoji = "🎉"
	f.engine.HandleReactionAdd(f.ctx, ev)

	ev = f.event("user-1")
	ev.ChannelID = "general"
	f.engine.HandleReactionAdd(f.ctx, ev)

	plain, err := f.platform.SendMessage(remindAll, "hello", nil, "")
	require.NoError(t, err)
	ev = f.event("user-1")
	ev.MessageID = plain
	f.engine.HandleReactionAdd(f.ctx, ev)

	f.store.Update(guildID, func(g *storage.GuildSettings) {
		g.Open.FinalCallChannelID = ""
	})
	f.engine.HandleReactionAdd(f.ctx, f.event("user-1"))

	assert.Empty(t, f.store.FinalCalls(guildID, contest.Open))
	assert.Empty(t, f.platform.Roles)
}

func TestEngine_RemoveUntrackedIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleReactionRemove(f.ctx, f.event("user-1"))
	assert.Empty(t, f.platform.DMs)
	assert.Empty(t, f.platform.DeletedRoles)
}

func TestEngine_TierFollowsChannel(t *testing.T) {
	f := newFixture(t)
	msg := f.postReminder(t, remindDiv1)

	f.platform.React(msg, emoji, 1)
	f.engine.HandleReactionAdd(f.ctx, chat.ReactionEvent{
		GuildID:   guildID,
		ChannelID: remindDiv1,
		MessageID: msg,
		UserID:    "user-1",
		Emoji:     emoji,
	})

	rec, ok := f.store.FinalCall(guildID, contest.Div1, contestLink)
	require.True(t, ok)
	assert.Contains(t, rec.RoleName, "Final Call (Div1) - ")
	assert.Equal(t, 10, rec.LeadMinutes)
	assert.Empty(t, f.store.FinalCalls(guildID, contest.Open))
}

func TestDeliveryString(t *testing.T) {
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "dm_failed", DMFailed.String())
}
