package bot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/contest-remind-bot/internal/cache"
	"github.com/flor3z/contest-remind-bot/internal/chat"
	"github.com/flor3z/contest-remind-bot/internal/clock"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/embed"
	"github.com/flor3z/contest-remind-bot/internal/storage"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	records []contest.RawContest
}

func (s *stubSource) Contests(ctx context.Context) ([]contest.RawContest, error) {
	return s.records, nil
}

type countingReconciler struct {
	guilds []string
}

func (r *countingReconciler) Reconcile(guildID string) {
	r.guilds = append(r.guilds, guildID)
}

type adminFixture struct {
	ctx        context.Context
	repo       *storage.Repository
	store      *storage.Store
	admin      *Admin
	reconciled *countingReconciler
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	clk := clock.NewFake(now)
	reg := contest.NewRegistry()
	c := cache.New(&stubSource{records: []contest.RawContest{
		{ID: 1, Event: "Codeforces Round 1 (Div. 2)", Start: now.Add(time.Hour).Format("2006-01-02T15:04:05"),
			Duration: 7200, Href: "https://codeforces.com/contest/1", Resource: "codeforces.com"},
		{ID: 2, Event: "AtCoder Beginner Contest 300", Start: now.Add(2 * time.Hour).Format("2006-01-02T15:04:05"),
			Duration: 6000, Href: "https://atcoder.jp/contests/abc300", Resource: "atcoder.jp"},
	}}, reg, clk)
	require.NoError(t, c.Refresh(context.Background()))

	store := storage.NewStore(repo, clk, time.Hour)
	r := &countingReconciler{}
	return &adminFixture{
		ctx:        context.Background(),
		repo:       repo,
		store:      store,
		admin:      NewAdmin(store, reg, c, r),
		reconciled: r,
	}
}

func TestParseLeadTimes(t *testing.T) {
	before, err := ParseLeadTimes("10 60,180")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 60, 180}, before)

	for _, raw := range []string{"", "  ", "10 -5", "ten"} {
		_, err := ParseLeadTimes(raw)
		var cmdErr *CommandError
		assert.True(t, errors.As(err, &cmdErr), raw)
	}
}

func TestAdmin_ConfigureReminders(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.admin.ConfigureReminders(f.ctx, "g1", contest.Open, "c1", chat.Role{ID: "r1"}, []int{10})
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "The role for reminders must be mentionable", cmdErr.Message)
	assert.Empty(t, f.reconciled.guilds)

	e, err := f.admin.ConfigureReminders(f.ctx, "g1", contest.Open, "c1", chat.Role{ID: "r1", Mentionable: true}, []int{10, 180, 60})
	require.NoError(t, err)
	assert.Equal(t, embed.ColorSuccess, e.Color)
	assert.Equal(t, "At 180, 60, 10 mins before contest", e.Fields[2].Value)

	settings := f.store.Settings("g1")
	assert.Equal(t, []int{180, 60, 10}, settings.Open.RemindBefore)
	assert.Equal(t, []string{"g1"}, f.reconciled.guilds)

	// persisted and backed up as part of the command
	_, err = f.repo.LoadPrimary(f.ctx)
	assert.NoError(t, err)
	backups, err := f.repo.Backups(f.ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestAdmin_ConfigureFinalCall(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.admin.ConfigureFinalCall(f.ctx, "g1", contest.Div1, "c2", -1)
	assert.Error(t, err)

	_, err = f.admin.ConfigureFinalCall(f.ctx, "g1", contest.Div1, "c2", 0)
	require.NoError(t, err)
	settings := f.store.Settings("g1")
	require.True(t, settings.Div1.FinalCallConfigured())
	assert.Equal(t, 0, *settings.Div1.FinalCallBefore)
}

func TestAdmin_SetSubscriptions(t *testing.T) {
	f := newAdminFixture(t)

	e := f.admin.SetSubscriptions(f.ctx, "g1", contest.Open, []string{"leetcode.com"}, false)
	assert.Equal(t, embed.ColorAlert, e.Color)
	assert.Contains(t, e.Description, "codeforces.com")
	assert.Empty(t, f.reconciled.guilds)

	e = f.admin.SetSubscriptions(f.ctx, "g1", contest.Open, []string{"codeforces.com", "atcoder.jp", "leetcode.com"}, false)
	assert.Equal(t, embed.ColorSuccess, e.Color)
	assert.Contains(t, e.Description, "leetcode.com is not supported.")
	assert.Equal(t, []string{"atcoder.jp", "codeforces.com"}, f.store.Settings("g1").Open.Websites)

	f.admin.SetSubscriptions(f.ctx, "g1", contest.Open, []string{"atcoder.jp"}, true)
	assert.Equal(t, []string{"codeforces.com"}, f.store.Settings("g1").Open.Websites)

	f.admin.ResetSubscriptions(f.ctx, "g1")
	assert.Empty(t, f.store.Settings("g1").Open.Websites)
}

func TestAdmin_Clear(t *testing.T) {
	f := newAdminFixture(t)
	_, err := f.admin.ConfigureFinalCall(f.ctx, "g1", contest.Open, "c1", 5)
	require.NoError(t, err)

	f.admin.Clear(f.ctx, "g1")
	settings := f.store.Settings("g1")
	assert.False(t, settings.Open.FinalCallConfigured())
	assert.Equal(t, []string{"g1", "g1"}, f.reconciled.guilds)
}

func TestAdmin_Settings(t *testing.T) {
	f := newAdminFixture(t)
	f.admin.SetSubscriptions(f.ctx, "g1", contest.Div1, []string{"codeforces.com"}, false)

	embeds := f.admin.Settings("g1", "Guild")
	require.Len(t, embeds, 2)
	assert.Equal(t, "Current div1 settings", embeds[0].Description)
	assert.Equal(t, "Not Set", embeds[0].Fields[0].Value)
	assert.Equal(t, "codeforces.com", embeds[0].Fields[6].Value)
	assert.Equal(t, "None", embeds[1].Fields[6].Value)
	assert.Equal(t, "Guild", embeds[1].Footer.Text)
}

func TestAdmin_ContestList(t *testing.T) {
	f := newAdminFixture(t)
	f.admin.SetSubscriptions(f.ctx, "g1", contest.Open, []string{"codeforces.com", "atcoder.jp"}, false)

	embeds, err := f.admin.ContestList("g1", contest.Open, "future", nil)
	require.NoError(t, err)
	require.Len(t, embeds, 1)
	assert.Len(t, embeds[0].Fields, 2)
	assert.Equal(t, "Future contests (All)", embeds[0].Title)

	embeds, err = f.admin.ContestList("g1", contest.Open, "future", []string{"+ac"})
	require.NoError(t, err)
	assert.Len(t, embeds[0].Fields, 1)

	embeds, err = f.admin.ContestList("g1", contest.Open, "active", nil)
	require.NoError(t, err)
	assert.Equal(t, "No active contests found", embeds[0].Description)

	_, err = f.admin.ContestList("g1", contest.Open, "upcoming", nil)
	assert.Error(t, err)
}

func TestAdmin_ContestListFollowsSubscriptions(t *testing.T) {
	f := newAdminFixture(t)
	f.admin.SetSubscriptions(f.ctx, "g1", contest.Open, []string{"atcoder.jp"}, false)

	embeds, err := f.admin.ContestList("g1", contest.Open, "future", nil)
	require.NoError(t, err)
	require.Len(t, embeds, 1)
	require.Len(t, embeds[0].Fields, 1)
	assert.Contains(t, embeds[0].Fields[0].Value, "atcoder.jp")
	assert.NotContains(t, embeds[0].Fields[0].Value, "codeforces.com")

	// a guild with no subscriptions sees nothing
	embeds, err = f.admin.ContestList("g2", contest.Open, "future", nil)
	require.NoError(t, err)
	assert.Equal(t, "No future contests found", embeds[0].Description)
}
