package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func TestSeedCategories_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, SeedCategories(db))
	require.NoError(t, SeedCategories(db))

	want := 0
	for _, subs := range Topics {
		want += len(subs)
	}
	var got int64
	require.NoError(t, db.Model(&Category{}).Count(&got).Error)
	assert.Equal(t, int64(want), got)
	assert.Len(t, TopicOrder, len(Topics))
}

func TestMessageRead_UniquePerMessageAndUser(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(&MessageRead{MessageID: 1, UserID: 2}).Error)
	assert.Error(t, db.Create(&MessageRead{MessageID: 1, UserID: 2}).Error)
	assert.NoError(t, db.Create(&MessageRead{MessageID: 1, UserID: 3}).Error)
}

func TestUser_DisplayName(t *testing.T) {
	u := User{Email: "a@x.com"}
	assert.Equal(t, "a@x.com", u.DisplayName())
	u.FirstName, u.LastName = "Ada", "L"
	assert.Equal(t, "Ada L", u.DisplayName())
	u.Username = "ada"
	assert.Equal(t, "ada", u.DisplayName())
}
