package services

import (
	"context"
	"errors"
	"path"
	"strings"
	"testing"
	"time"

	"loop-backend/models"
	"loop-backend/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_NormalizesAndHashes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.Register(ctx, RegisterInput{Email: "  Ada@X.com ", Password: testPassword, FirstName: "Ada", LastName: "L"})
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", u.Email)
	assert.NotEqual(t, testPassword, u.PasswordHash)

	_, err = env.users.Register(ctx, RegisterInput{Email: "ada@x.com", Password: testPassword, FirstName: "A", LastName: "B"})
	assert.True(t, errors.Is(err, utils.ErrConflict))
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := map[string]RegisterInput{
		"missing first name": {Email: "a@x.com", Password: testPassword, LastName: "L"},
		"short password":     {Email: "a@x.com", Password: "short", FirstName: "A", LastName: "L"},
		"bad email":          {Email: "not-an-email", Password: testPassword, FirstName: "A", LastName: "L"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.users.Register(ctx, in)
			assert.Equal(t, utils.KindValidation, utils.KindOf(err))
		})
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.user(t, "a@x.com")

	u, err := env.users.Authenticate(ctx, "A@x.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = env.users.Authenticate(ctx, "a@x.com", "wrong-password")
	assert.True(t, errors.Is(err, utils.ErrUnauthorized))

	_, err = env.users.Authenticate(ctx, "nobody@x.com", testPassword)
	assert.True(t, errors.Is(err, utils.ErrUnauthorized))
}

func TestUpdateProfile_Partial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "a@x.com")

	name, bio := "ada", "hello"
	updated, err := env.users.UpdateProfile(ctx, u.ID, ProfileUpdate{Username: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "ada", updated.Username)
	assert.Equal(t, "hello", updated.Bio)
	assert.Equal(t, "a", updated.FirstName)
}

func TestSearch_ExcludesCaller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "alice@x.com")
	env.user(t, "alfred@x.com")
	env.user(t, "bob@x.com")

	found, err := env.users.Search(ctx, a.ID, "AL", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alfred@x.com", found[0].Email)
}

func TestUploadAvatar(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "a@x.com")

	updated, err := env.users.UploadAvatar(ctx, u.ID, strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(updated.ProfilePictureURL, "https://cdn.test/avatars/"))
	assert.True(t, strings.HasSuffix(updated.ProfilePictureURL, ".png"))
	assert.Len(t, env.store.objects, 1)

	_, err = env.users.UploadAvatar(ctx, u.ID, strings.NewReader("x"), 1, "application/pdf")
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))

	noStore := NewUserService(env.db, nil)
	_, err = noStore.UploadAvatar(ctx, u.ID, strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestPhotoGallery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com")
	b := env.user(t, "b@x.com")

	first, err := env.users.UploadPhoto(ctx, a.ID, strings.NewReader("one"), 3, "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ObjectKey, "photos/"))
	assert.Equal(t, "https://cdn.test/"+first.ObjectKey, first.URL)
	second, err := env.users.UploadPhoto(ctx, a.ID, strings.NewReader("two"), 3, "image/png")
	require.NoError(t, err)

	_, err = env.users.UploadPhoto(ctx, a.ID, strings.NewReader("x"), 1, "text/plain")
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))

	photos, err := env.users.Photos(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, first.ID, photos[0].ID)
	assert.Equal(t, second.ID, photos[1].ID)

	none, err := env.users.Photos(ctx, b.ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	name := path.Base(first.ObjectKey)
	err = env.users.DeletePhoto(ctx, b.ID, name)
	assert.True(t, errors.Is(err, utils.ErrNotFound))
	err = env.users.DeletePhoto(ctx, a.ID, "../"+name)
	assert.True(t, errors.Is(err, utils.ErrValidation))

	require.NoError(t, env.users.DeletePhoto(ctx, a.ID, name))
	assert.NotContains(t, env.store.objects, first.ObjectKey)
	assert.Contains(t, env.store.objects, second.ObjectKey)

	photos, err = env.users.Photos(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, second.ID, photos[0].ID)

	noStore := NewUserService(env.db, nil)
	_, err = noStore.UploadPhoto(ctx, a.ID, strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cats := seedCategories(t, env)
	owner := env.user(t, "o@x.com")
	gone := env.user(t, "g@x.com")

	view, err := env.communities.Create(ctx, owner.ID, CreateCommunityInput{Name: "C", Description: "d", CategoryIDs: []uint{cats[0].ID}})
	require.NoError(t, err)
	require.NoError(t, env.communities.Join(ctx, view.ID, gone.ID))

	post, err := env.posts.CreatePost(ctx, gone.ID, CreatePostInput{CommunityID: view.ID, Content: "bye"})
	require.NoError(t, err)
	_, err = env.posts.Comment(ctx, post.ID, owner.ID, "see you")
	require.NoError(t, err)
	_, err = env.friends.SendRequest(ctx, gone.ID, "o@x.com")
	require.NoError(t, err)
	photo, err := env.users.UploadPhoto(ctx, gone.ID, strings.NewReader("img"), 3, "image/png")
	require.NoError(t, err)
	event, err := env.events.CreateEvent(ctx, owner.ID, CreateEventInput{Title: "t", Location: "l", Date: time.Now().Add(time.Hour), Description: "d"})
	require.NoError(t, err)
	require.NoError(t, env.events.RSVP(ctx, event.ID, gone.ID))
	env.send(t, gone, "o@x.com", "last words")

	err = env.users.Delete(ctx, owner.ID)
	assert.True(t, errors.Is(err, utils.ErrConflict))

	require.NoError(t, env.users.Delete(ctx, gone.ID))

	_, err = env.users.GetByID(ctx, gone.ID)
	assert.True(t, errors.Is(err, utils.ErrNotFound))
	err = env.users.Delete(ctx, gone.ID)
	assert.True(t, errors.Is(err, utils.ErrNotFound))

	after, err := env.communities.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Members)

	for _, model := range []any{&models.Post{}, &models.Comment{}, &models.Friendship{}, &models.UserPhoto{}, &models.EventRSVP{}} {
		var n int64
		require.NoError(t, env.db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T", model)
	}
	assert.NotContains(t, env.store.objects, photo.ObjectKey)

	convs, err := env.messages.ListConversations(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, convs)
}
