package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"loop-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "password123"

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = buf.Bytes()
	return "https://cdn.test/" + key, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type testEnv struct {
	db          *gorm.DB
	store       *fakeStore
	users       *UserService
	tokens      *TokenService
	reads       *ReadTracker
	messages    *MessageService
	groups      *GroupService
	friends     *FriendService
	communities *CommunityService
	posts       *PostService
	events      *EventService
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	store := &fakeStore{}
	users := NewUserService(db, store)
	reads := NewReadTracker(db, nil)
	friends := NewFriendService(db, users)
	communities := NewCommunityService(db, users, friends, store, nil, 4000)
	return &testEnv{
		db:          db,
		store:       store,
		users:       users,
		tokens:      NewTokenService("test-secret", 0),
		reads:       reads,
		messages:    NewMessageService(db, users, reads, nil, 4000),
		groups:      NewGroupService(db, users, nil, 4000),
		friends:     friends,
		communities: communities,
		posts:       NewPostService(db, users, communities),
		events:      NewEventService(db, users, "staff.test"),
	}
}

// user registers a user whose first name is the local part of email.
func (e *testEnv) user(t *testing.T, email string) *models.User {
	t.Helper()
	local, _, _ := strings.Cut(email, "@")
	u, err := e.users.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  testPassword,
		FirstName: local,
		LastName:  "Test",
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) send(t *testing.T, from *models.User, to, text string) *DirectSent {
	t.Helper()
	sent, err := e.messages.SendDirect(context.Background(), from.ID, to, text)
	require.NoError(t, err)
	return sent
}
