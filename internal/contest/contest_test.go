package contest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Matches(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		website string
		event   string
		div1    bool
		open    bool
	}{
		{"codeforces div2", "codeforces.com", "Codeforces Round 123 (Div. 2)", false, true},
		{"codeforces div1", "codeforces.com", "Codeforces Round 900 (Div. 1)", true, true},
		{"codeforces combined", "codeforces.com", "Codeforces Round 901 (Div. 1 + Div. 2)", true, true},
		{"codeforces global", "codeforces.com", "Codeforces Global Round 25", true, true},
		{"codeforces educational", "codeforces.com", "Educational Codeforces Round 160 (Rated for Div. 2)", false, true},
		{"codeforces kotlin", "codeforces.com", "Kotlin Heroes: Episode 10", false, false},
		{"codeforces fools", "codeforces.com", "April Fools Day Contest 2024", false, false},
		{"codeforces unrated forced", "codeforces.com", "Codeforces Round 950 (Div. 3, unrated)", false, true},
		{"codechef", "codechef.com", "Starters 120", false, true},
		{"atcoder beginner", "atcoder.jp", "AtCoder Beginner Contest 350", false, true},
		{"atcoder regular", "atcoder.jp", "AtCoder Regular Contest 175", true, true},
		{"atcoder grand", "atcoder.jp", "AtCoder Grand Contest 066", true, true},
		{"atcoder heuristic", "atcoder.jp", "AtCoder Heuristic Contest 030", false, false},
		{"hackercup", "facebook.com/hackercup", "Meta Hacker Cup 2024 Round 1", true, true},
		{"troc", "tlx.toki.id", "TLX Regular Open Contest #35", true, true},
		{"toki other", "tlx.toki.id", "TOKI Open Championship", false, false},
		{"unknown website", "leetcode.com", "Weekly Contest 400", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.div1, reg.Matches(tt.website, tt.event, Div1), "div1")
			assert.Equal(t, tt.open, reg.Matches(tt.website, tt.event, Open), "open")
		})
	}
}

func TestRegistry_Normalize(t *testing.T) {
	reg := NewRegistry()

	assert.Equal(t, "AtCoder Beginner Contest 350",
		reg.Normalize("atcoder.jp", "AtCoder Beginner Contest 350（Promotion of AtCoder Career Design DAY）"))
	assert.Equal(t, "Something odd", reg.Normalize("atcoder.jp", "Something odd"))
	assert.Equal(t, "Codeforces Round 1", reg.Normalize("codeforces.com", "Codeforces Round 1"))
	assert.Equal(t, "Weekly", reg.Normalize("unknown.example", "Weekly"))
}

func TestNew(t *testing.T) {
	reg := NewRegistry()

	c, err := New(RawContest{
		ID:       42,
		Event:    "AtCoder Regular Contest 175 (Sponsored)",
		Start:    "2024-03-24T12:00:00",
		Duration: 7200,
		Href:     "https://atcoder.jp/contests/arc175",
		Resource: "atcoder.jp",
	}, reg)
	require.NoError(t, err)

	assert.Equal(t, "AtCoder Regular Contest 175", c.Name)
	assert.Equal(t, time.Date(2024, 3, 24, 12, 0, 0, 0, time.UTC), c.Start)
	assert.Equal(t, 2*time.Hour, c.Duration)
	assert.Equal(t, time.Date(2024, 3, 24, 14, 0, 0, 0, time.UTC), c.End())
	assert.Equal(t, "AtCoder", c.Prefix)
	assert.Equal(t, "AtCoder Regular Contest 175", c.DisplayName())

	_, err = New(RawContest{ID: 1, Start: "yesterday"}, reg)
	assert.Error(t, err)
}

func TestContest_DisplayName(t *testing.T) {
	c := Contest{Name: "Starters 120", Prefix: "CodeChef"}
	assert.Equal(t, "CodeChef || Starters 120", c.DisplayName())

	c = Contest{Name: "Weekly Contest 400"}
	assert.Equal(t, "Weekly Contest 400", c.DisplayName())
}

func TestFilterByShorthand(t *testing.T) {
	reg := NewRegistry()
	contests := []Contest{
		{Name: "a", Website: "codeforces.com"},
		{Name: "b", Website: "atcoder.jp"},
		{Name: "c", Website: "codechef.com"},
	}

	assert.Len(t, FilterByShorthand(contests, nil, reg), 3)

	got := FilterByShorthand(contests, []string{"+cf", "+atcoder"}, reg)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "a", got[0].Name)
		assert.Equal(t, "b", got[1].Name)
	}

	assert.Empty(t, FilterByShorthand(contests, []string{"cf"}, reg))
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("div1")
	require.NoError(t, err)
	assert.Equal(t, Div1, tier)

	tier, err = ParseTier("ALL")
	require.NoError(t, err)
	assert.Equal(t, Open, tier)

	_, err = ParseTier("div2")
	assert.Error(t, err)
}

func TestParseWebsites_Invalid(t *testing.T) {
	_, err := ParseWebsites([]byte("websites: []"))
	assert.Error(t, err)

	_, err = ParseWebsites([]byte("websites:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = ParseWebsites([]byte("websites:\n  - id: a\n    normalize: \"(\"\n"))
	assert.Error(t, err)
}

const overrideRules = `websites:
  - id: leetcode.com
    prefix: LeetCode
    shorthands: [lc]
    require: [weekly, biweekly]
    div1:
      disabled: true
`

func TestRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "websites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(overrideRules), 0o644))

	reg := NewRegistry()
	require.NoError(t, reg.LoadFile(path))

	assert.Equal(t, []string{"leetcode.com"}, reg.List())
	assert.True(t, reg.Matches("leetcode.com", "Weekly Contest 400", Open))
	assert.False(t, reg.Matches("leetcode.com", "Weekly Contest 400", Div1))
	assert.False(t, reg.Supported("codeforces.com"))
}

func TestRegistry_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "websites.yaml")
	require.NoError(t, os.WriteFile(path, defaultWebsites, 0o644))

	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, reg.Watch(ctx, path))

	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, reg.Supported("codeforces.com"))

	require.NoError(t, os.WriteFile(path, []byte(overrideRules), 0o644))
	assert.Eventually(t, func() bool {
		return reg.Supported("leetcode.com")
	}, 2*time.Second, 20*time.Millisecond)
}
