package services

import (
	"context"
	"errors"
	"testing"

	"loop-backend/models"
	"loop-backend/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroup_CreatorAndMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.user(t, "c@x.com")
	env.user(t, "d@x.com")
	env.user(t, "e@x.com")

	created, err := env.groups.CreateGroup(ctx, c.ID, "study", []string{"d@x.com", "E@x.com", "ghost@x.com", "d@x.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c@x.com", "d@x.com", "e@x.com"}, created.Members)
	assert.Equal(t, []string{"ghost@x.com"}, created.Unresolved)

	var n int64
	require.NoError(t, env.db.Model(&models.GroupChatMember{}).Where("group_id = ?", created.Group.ID).Count(&n).Error)
	assert.Equal(t, int64(3), n)

	added, err := env.groups.AddMembers(ctx, created.Group.ID, c.ID, []string{"d@x.com"})
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestCreateGroup_RequiresName(t *testing.T) {
	env := newTestEnv(t)
	c := env.user(t, "c@x.com")

	_, err := env.groups.CreateGroup(context.Background(), c.ID, "  ", nil)
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestAddMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.user(t, "c@x.com")
	env.user(t, "d@x.com")
	outsider := env.user(t, "o@x.com")

	created, err := env.groups.CreateGroup(ctx, c.ID, "g", nil)
	require.NoError(t, err)

	added, err := env.groups.AddMembers(ctx, created.Group.ID, c.ID, []string{"d@x.com", "nobody@x.com", "c@x.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d@x.com"}, added)

	_, err = env.groups.AddMembers(ctx, created.Group.ID, outsider.ID, []string{"o@x.com"})
	assert.True(t, errors.Is(err, utils.ErrUnauthorized))

	_, err = env.groups.AddMembers(ctx, 999, c.ID, []string{"d@x.com"})
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}

func TestLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.user(t, "c@x.com")
	d := env.user(t, "d@x.com")
	stranger := env.user(t, "s@x.com")

	created, err := env.groups.CreateGroup(ctx, c.ID, "g", []string{"d@x.com"})
	require.NoError(t, err)

	require.NoError(t, env.groups.Leave(ctx, created.Group.ID, d.ID))
	err = env.groups.Leave(ctx, created.Group.ID, d.ID)
	assert.True(t, errors.Is(err, utils.ErrUnauthorized))
	assert.Contains(t, utils.MessageOf(err), "not a member")

	err = env.groups.Leave(ctx, created.Group.ID, stranger.ID)
	assert.True(t, errors.Is(err, utils.ErrUnauthorized))

	err = env.groups.Leave(ctx, 999, c.ID)
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}

func TestGroupHistory_OldestFirstWithSender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.user(t, "c@x.com")
	d := env.user(t, "d@x.com")
	name := "dee"
	_, err := env.users.UpdateProfile(ctx, d.ID, ProfileUpdate{Username: &name})
	require.NoError(t, err)

	created, err := env.groups.CreateGroup(ctx, c.ID, "g", []string{"d@x.com"})
	require.NoError(t, err)
	gid := created.Group.ID

	_, err = env.groups.SendGroupMessage(ctx, gid, c.ID, "first")
	require.NoError(t, err)
	sent, err := env.groups.SendGroupMessage(ctx, gid, d.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "dee", sent.Username)

	history, err := env.groups.GroupHistory(ctx, gid, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Text)
	assert.Equal(t, "c@x.com", history[0].From)
	assert.Equal(t, "c Test", history[0].Username)
	assert.Equal(t, "second", history[1].Text)
	assert.Equal(t, "dee", history[1].Username)
}

func TestSendGroupMessage_MembersOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.user(t, "c@x.com")
	o := env.user(t, "o@x.com")

	created, err := env.groups.CreateGroup(ctx, c.ID, "g", nil)
	require.NoError(t, err)

	_, err = env.groups.SendGroupMessage(ctx, created.Group.ID, o.ID, "hi")
	assert.True(t, errors.Is(err, utils.ErrUnauthorized))

	_, err = env.groups.GroupHistory(ctx, created.Group.ID, o.ID)
	assert.True(t, errors.Is(err, utils.ErrUnauthorized))
}

func TestMembersAndRename(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.user(t, "c@x.com")
	env.user(t, "d@x.com")

	created, err := env.groups.CreateGroup(ctx, c.ID, "g", []string{"d@x.com"})
	require.NoError(t, err)

	members, err := env.groups.Members(ctx, created.Group.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "c@x.com", members[0].Email)

	g, err := env.groups.Rename(ctx, created.Group.ID, c.ID, " renamed ")
	require.NoError(t, err)
	assert.Equal(t, "renamed", g.Name)
}
