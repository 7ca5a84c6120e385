package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path"
	"testing"

	"loop-backend/middlewares"
	"loop-backend/models"
	"loop-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	keys []string
}

func (m *memStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	return "https://cdn.test/" + key, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			return nil
		}
	}
	return nil
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

func registerUser(t *testing.T, users *services.UserService, email string) *models.User {
	t.Helper()
	u, err := users.Register(context.Background(), services.RegisterInput{
		Email: email, Password: "password123", FirstName: "First", LastName: "Last",
	})
	require.NoError(t, err)
	return u
}

// as stands in for the auth middleware.
func as(u *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middlewares.UserKey, u)
		c.Next()
	}
}

func uploadRequest(t *testing.T, target, contentType string, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAvatar(t *testing.T) {
	db := openDB(t)
	store := &memStore{}
	users := services.NewUserService(db, store)
	u := registerUser(t, users, "alice@x.com")
	ctl := NewUserController(users, services.NewTokenService("secret", 0))

	r := gin.New()
	r.POST("/avatar", as(u), ctl.UploadAvatar)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/avatar", "image/png", []byte("\x89PNG fake")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Data models.UserProfile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, store.keys, 1)
	assert.Equal(t, "https://cdn.test/"+store.keys[0], out.Data.ProfilePictureURL)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/avatar", "application/pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/avatar", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadAvatarWithoutStorage(t *testing.T) {
	db := openDB(t)
	users := services.NewUserService(db, nil)
	u := registerUser(t, users, "alice@x.com")
	ctl := NewUserController(users, services.NewTokenService("secret", 0))

	r := gin.New()
	r.POST("/avatar", as(u), ctl.UploadAvatar)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/avatar", "image/png", []byte("\x89PNG fake")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPhotoEndpoints(t *testing.T) {
	db := openDB(t)
	store := &memStore{}
	users := services.NewUserService(db, store)
	alice := registerUser(t, users, "alice@x.com")
	bob := registerUser(t, users, "bob@x.com")
	ctl := NewUserController(users, services.NewTokenService("secret", 0))

	r := gin.New()
	r.POST("/photos", as(alice), ctl.UploadPhoto)
	r.GET("/photos", as(alice), ctl.MyPhotos)
	r.DELETE("/photos/:key", as(alice), ctl.DeletePhoto)
	r.GET("/users/:email/photos", as(bob), ctl.PhotosOf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/photos", "image/webp", []byte("RIFF fake")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data models.UserPhoto `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, store.keys, 1)
	assert.Equal(t, store.keys[0], created.Data.ObjectKey)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/alice@x.com/photos", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Data []models.UserPhoto `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 1)
	assert.Equal(t, created.Data.URL, listed.Data[0].URL)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/photos/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/photos/"+path.Base(created.Data.ObjectKey), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, store.keys)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/photos", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Empty(t, listed.Data)
}

func TestUpdateMeAndSearch(t *testing.T) {
	db := openDB(t)
	users := services.NewUserService(db, nil)
	alice := registerUser(t, users, "alice@x.com")
	registerUser(t, users, "bob@x.com")
	ctl := NewUserController(users, services.NewTokenService("secret", 0))

	r := gin.New()
	r.PUT("/me", as(alice), ctl.UpdateMe)
	r.GET("/search", as(alice), ctl.Search)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/me", bytes.NewBufferString(`{"bio":"runner","degree":"CS"}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		Data models.UserProfile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "runner", me.Data.Bio)
	assert.Equal(t, "CS", me.Data.Degree)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?q=bob", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Data []models.UserProfile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Len(t, found.Data, 1)
	assert.Equal(t, "bob@x.com", found.Data[0].Email)
}

func TestMarkRead(t *testing.T) {
	db := openDB(t)
	users := services.NewUserService(db, nil)
	alice := registerUser(t, users, "alice@x.com")
	bob := registerUser(t, users, "bob@x.com")
	reads := services.NewReadTracker(db, nil)
	messages := services.NewMessageService(db, users, reads, nil, 4000)
	sent, err := messages.SendDirect(context.Background(), alice.ID, "bob@x.com", "hi")
	require.NoError(t, err)

	ctl := NewMessageController(messages, reads, nil)
	r := gin.New()
	r.POST("/bob/:id/read", as(bob), ctl.MarkRead)
	r.POST("/alice/:id/read", as(alice), ctl.MarkRead)

	path := func(who string, id any) string {
		b, _ := json.Marshal(id)
		return "/" + who + "/" + string(b) + "/read"
	}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path("bob", sent.Message.ID), nil))
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path("alice", sent.Message.ID), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bob/zero/read", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	seen, err := reads.Seen(context.Background(), sent.Message.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}
