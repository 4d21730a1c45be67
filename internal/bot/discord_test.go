package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/contest-remind-bot/internal/chat"
)

func newTestDiscord(t *testing.T) *Discord {
	t.Helper()
	session, err := discordgo.New("Bot test-token")
	require.NoError(t, err)
	session.ShouldRetryOnRateLimit = false
	gock.InterceptClient(session.Client)
	t.Cleanup(func() {
		gock.RestoreClient(session.Client)
		gock.Off()
	})
	return NewDiscord(session)
}

func TestDiscord_SendMessage(t *testing.T) {
	d := newTestDiscord(t)

	gock.New("https://discord.com").
		Post("/api/v9/channels/c1/messages").
		MatchHeader("Authorization", "Bot test-token").
		Reply(200).
		JSON(map[string]any{"id": "m1", "channel_id": "c1"})

	id, err := d.SendMessage("c1", "<@&r1> Its CodeForces time!", &discordgo.MessageEmbed{Description: "soon"}, "r1")
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.True(t, gock.IsDone())
}

func TestDiscord_FetchMessageReactions(t *testing.T) {
	d := newTestDiscord(t)

	gock.New("https://discord.com").
		Get("/api/v9/channels/c1/messages/m1").
		Reply(200).
		JSON(map[string]any{
			"id":         "m1",
			"channel_id": "c1",
			"content":    "hello",
			"embeds":     []map[string]any{{"description": "About to start in 1 hr!"}},
			"reactions": []map[string]any{
				{"count": 3, "me": true, "emoji": map[string]any{"name": "✅"}},
			},
		})

	msg, err := d.FetchMessage("c1", "m1")
	require.NoError(t, err)
	require.Len(t, msg.Embeds, 1)
	assert.Equal(t, 2, msg.Subscribers("✅"))
}

func TestDiscord_NotFoundMapsToSentinel(t *testing.T) {
	d := newTestDiscord(t)

	gock.New("https://discord.com").
		Delete("/api/v9/guilds/g1/roles/r1").
		Reply(404).
		JSON(map[string]any{"message": "Unknown Role", "code": 10011})

	err := d.DeleteRole("g1", "r1")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestDiscord_CreateRoleIsMentionable(t *testing.T) {
	d := newTestDiscord(t)

	gock.New("https://discord.com").
		Post("/api/v9/guilds/g1/roles").
		Reply(200).
		JSON(map[string]any{"id": "r9", "name": "Final Call (All) - Round 1", "mentionable": true})

	role, err := d.CreateRole("g1", "Final Call (All) - Round 1")
	require.NoError(t, err)
	assert.Equal(t, "r9", role.ID)
	assert.True(t, role.Mentionable)
}
