package services

import (
	"context"
	"testing"

	"loop-backend/models"
	"loop-backend/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListConversations_EmptyForNewUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@x.com")

	got, err := env.messages.ListConversations(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListConversations_HiYo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com")
	b := env.user(t, "b@x.com")

	env.send(t, a, "b@x.com", "hi")
	env.send(t, b, "a@x.com", "yo")

	convs, err := env.messages.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	c := convs[0]
	assert.False(t, c.IsGroup)
	assert.Equal(t, "a@x.com_b@x.com", c.ConversationID)
	assert.Equal(t, "yo", c.LastMessage.Text)
	assert.Equal(t, "b@x.com", c.OtherParticipantEmail)
	require.NotNil(t, c.UnreadCount)
	assert.Equal(t, int64(1), *c.UnreadCount)
	assert.False(t, *c.FromMe)
	assert.False(t, *c.RecipientSeen)

	history, err := env.messages.DirectHistory(ctx, a.ID, "b@x.com")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text)
	assert.Equal(t, "a@x.com", history[0].From)
	assert.Equal(t, "yo", history[1].Text)

	convs, err = env.messages.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, int64(0), *convs[0].UnreadCount)
}

func TestListConversations_SameKeyForBothSides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com")
	b := env.user(t, "b@x.com")
	c := env.user(t, "c@x.com")

	env.send(t, a, "b@x.com", "1")
	env.send(t, b, "a@x.com", "2")
	env.send(t, a, "b@x.com", "3")
	env.send(t, c, "a@x.com", "from c")

	forA, err := env.messages.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	forB, err := env.messages.ListConversations(ctx, b.ID)
	require.NoError(t, err)

	require.Len(t, forA, 2)
	require.Len(t, forB, 1)

	keysA := map[string]models.ConversationSummary{}
	for _, s := range forA {
		_, dup := keysA[s.ConversationID]
		assert.False(t, dup, "duplicate key %s", s.ConversationID)
		keysA[s.ConversationID] = s
	}
	ab, ok := keysA[forB[0].ConversationID]
	require.True(t, ok)
	assert.Equal(t, "3", ab.LastMessage.Text)
	assert.Equal(t, "3", forB[0].LastMessage.Text)

	// newest activity first
	assert.Equal(t, "c@x.com", forA[0].OtherParticipantEmail)
}

func TestListConversations_RecipientSeen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com")
	b := env.user(t, "b@x.com")

	sent := env.send(t, a, "b@x.com", "hi")

	convs, err := env.messages.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.True(t, *convs[0].FromMe)
	assert.False(t, *convs[0].RecipientSeen)
	assert.Equal(t, int64(0), *convs[0].UnreadCount)

	require.NoError(t, env.reads.MarkAsRead(ctx, b.ID, sent.Message.ID))

	convs, err = env.messages.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, *convs[0].RecipientSeen)
}

func TestListConversations_GroupsWithMessagesOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com")
	env.user(t, "b@x.com")

	quiet, err := env.groups.CreateGroup(ctx, a.ID, "quiet", []string{"b@x.com"})
	require.NoError(t, err)
	busy, err := env.groups.CreateGroup(ctx, a.ID, "busy", []string{"b@x.com"})
	require.NoError(t, err)
	_, err = env.groups.SendGroupMessage(ctx, busy.Group.ID, a.ID, "first")
	require.NoError(t, err)
	_, err = env.groups.SendGroupMessage(ctx, busy.Group.ID, a.ID, "second")
	require.NoError(t, err)

	convs, err := env.messages.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	g := convs[0]
	assert.True(t, g.IsGroup)
	assert.Equal(t, GroupKey(busy.Group.ID).String(), g.ConversationID)
	assert.Equal(t, "busy", g.GroupName)
	assert.Equal(t, "second", g.LastMessage.Text)
	assert.Nil(t, g.UnreadCount)
	assert.NotEqual(t, quiet.Group.ID, g.GroupID)
}

func TestSendDirect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com")
	env.user(t, "b@x.com")

	sent := env.send(t, a, "B@x.com", "  hello  ")
	assert.Equal(t, "hello", sent.Message.Text)
	assert.Equal(t, "a@x.com", sent.Message.From)
	assert.Equal(t, DirectKey("a@x.com", "b@x.com"), sent.Key)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{6}Z$`, sent.Message.Timestamp)

	var stored models.DirectMessage
	require.NoError(t, env.db.First(&stored, sent.Message.ID).Error)
	assert.True(t, stored.Delivered)

	_, err := env.messages.SendDirect(ctx, a.ID, "nobody@x.com", "hi")
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))

	_, err = env.messages.SendDirect(ctx, a.ID, "b@x.com", "   ")
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestDirectHistory_UnknownCounterpart(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "a@x.com")

	_, err := env.messages.DirectHistory(context.Background(), a.ID, "ghost@x.com")
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))
}
