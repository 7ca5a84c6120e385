package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/mail"
	"strings"

	"loop-backend/models"
	"loop-backend/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// UserService owns the identity store.
type UserService struct {
	db    *gorm.DB
	store ObjectStore
}

func NewUserService(db *gorm.DB, store ObjectStore) *UserService {
	return &UserService{db: db, store: store}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	switch {
	case strings.TrimSpace(in.FirstName) == "":
		return nil, utils.Validation("firstname is required")
	case strings.TrimSpace(in.LastName) == "":
		return nil, utils.Validation("lastname is required")
	case email == "":
		return nil, utils.Validation("email is required")
	case len(in.Password) < minPasswordLength:
		return nil, utils.Validation("password must be at least %d characters", minPasswordLength)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, utils.Validation("invalid email address")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, utils.Internal("check email", err)
	}
	if count > 0 {
		return nil, utils.Conflict("user with this email already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, utils.Internal("hash password", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hashed),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, utils.Internal("create user", err)
	}
	return user, nil
}

// Authenticate verifies the credentials and returns the user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, utils.Validation("email and password are required")
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.Unauthorized("incorrect email/password")
	}
	if err != nil {
		return nil, utils.Internal("find user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, utils.Unauthorized("incorrect email/password")
	}
	return &user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, utils.Internal("find user", err)
	}
	return &user, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("user with email '%s' not found", email)
	}
	if err != nil {
		return nil, utils.Internal("find user", err)
	}
	return &user, nil
}

// FindByEmails resolves the given addresses; unknown ones are absent from the map.
func (s *UserService) FindByEmails(ctx context.Context, emails []string) (map[string]models.User, error) {
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = NormalizeEmail(e); e != "" {
			normalized = append(normalized, e)
		}
	}
	out := make(map[string]models.User, len(normalized))
	if len(normalized) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("email IN ?", normalized).Find(&users).Error; err != nil {
		return nil, utils.Internal("find users", err)
	}
	for _, u := range users {
		out[u.Email] = u
	}
	return out, nil
}

// ProfileUpdate carries optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	Username  *string `json:"username"`
	FirstName *string `json:"firstname"`
	LastName  *string `json:"lastname"`
	YearLevel *string `json:"year_level"`
	Degree    *string `json:"degree"`
	Pronoun   *string `json:"pronoun"`
	Bio       *string `json:"bio"`
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) (*models.User, error) {
	updates := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	set("username", in.Username)
	set("first_name", in.FirstName)
	set("last_name", in.LastName)
	set("year_level", in.YearLevel)
	set("degree", in.Degree)
	set("pronoun", in.Pronoun)
	set("bio", in.Bio)

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, utils.Internal("update profile", err)
	}
	return s.GetByID(ctx, userID)
}

// Search matches email, username or names, excluding the caller.
func (s *UserService) Search(ctx context.Context, callerID uint, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("id <> ?", callerID).
		Where("LOWER(email) LIKE ? OR LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", q, q, q, q).
		Order("email ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, utils.Internal("search users", err)
	}
	return users, nil
}

// UploadAvatar stores the image and records its URL on the user.
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, body io.Reader, size int64, contentType string) (*models.User, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	if _, err := s.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	_, url, err := storeImage(ctx, s.store, "avatars", userID, body, size, contentType)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("profile_picture_url", url).Error; err != nil {
		return nil, utils.Internal("save avatar", err)
	}
	return s.GetByID(ctx, userID)
}

// UploadPhoto adds an image to the user's gallery.
func (s *UserService) UploadPhoto(ctx context.Context, userID uint, body io.Reader, size int64, contentType string) (*models.UserPhoto, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	if _, err := s.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	key, url, err := storeImage(ctx, s.store, "photos", userID, body, size, contentType)
	if err != nil {
		return nil, err
	}
	photo := models.UserPhoto{UserID: userID, ObjectKey: key, URL: url}
	if err := s.db.WithContext(ctx).Create(&photo).Error; err != nil {
		return nil, utils.Internal("save photo", err)
	}
	return &photo, nil
}

// Photos lists a user's gallery oldest first.
func (s *UserService) Photos(ctx context.Context, userID uint) ([]models.UserPhoto, error) {
	photos := []models.UserPhoto{}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&photos).Error; err != nil {
		return nil, utils.Internal("list photos", err)
	}
	return photos, nil
}

// DeletePhoto removes the caller's photo whose key ends with name, the last
// path segment of the stored key.
func (s *UserService) DeletePhoto(ctx context.Context, userID uint, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return utils.Validation("invalid photo key")
	}
	var photo models.UserPhoto
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND object_key LIKE ?", userID, "%/"+name).
		First(&photo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NotFound("photo not found")
	}
	if err != nil {
		return utils.Internal("find photo", err)
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, photo.ObjectKey); err != nil {
			return utils.Internal("delete photo object", err)
		}
	}
	if err := s.db.WithContext(ctx).Delete(&photo).Error; err != nil {
		return utils.Internal("delete photo", err)
	}
	return nil
}

// Delete removes the account with its memberships, friendships, reactions,
// posts, RSVPs and gallery. Owners must hand over their communities first.
// Sent messages are kept; conversation views skip senders that no longer
// exist.
func (s *UserService) Delete(ctx context.Context, userID uint) error {
	if _, err := s.GetByID(ctx, userID); err != nil {
		return err
	}
	var keys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned int64
		if err := tx.Model(&models.Community{}).Where("owner_id = ?", userID).Count(&owned).Error; err != nil {
			return utils.Internal("check owned communities", err)
		}
		if owned > 0 {
			return utils.Conflict("transfer ownership of your communities before deleting the account")
		}

		if err := tx.Model(&models.UserPhoto{}).Where("user_id = ?", userID).Pluck("object_key", &keys).Error; err != nil {
			return utils.Internal("list photos", err)
		}

		joined := tx.Model(&models.CommunityMember{}).Select("community_id").Where("user_id = ?", userID)
		if err := tx.Model(&models.Community{}).Where("id IN (?)", joined).
			UpdateColumn("members", gorm.Expr("members - 1")).Error; err != nil {
			return utils.Internal("update member counts", err)
		}

		posts := tx.Model(&models.Post{}).Select("id").Where("author_id = ?", userID)
		steps := []struct {
			what  string
			model any
			query string
			args  []any
		}{
			{"likes on posts", &models.Like{}, "post_id IN (?)", []any{posts}},
			{"comments on posts", &models.Comment{}, "post_id IN (?)", []any{posts}},
			{"posts", &models.Post{}, "author_id = ?", []any{userID}},
			{"likes", &models.Like{}, "user_id = ?", []any{userID}},
			{"comments", &models.Comment{}, "user_id = ?", []any{userID}},
			{"community memberships", &models.CommunityMember{}, "user_id = ?", []any{userID}},
			{"group memberships", &models.GroupChatMember{}, "user_id = ?", []any{userID}},
			{"friendships", &models.Friendship{}, "requester_id = ? OR addressee_id = ?", []any{userID, userID}},
			{"read markers", &models.MessageRead{}, "user_id = ?", []any{userID}},
			{"rsvps", &models.EventRSVP{}, "user_id = ?", []any{userID}},
			{"photos", &models.UserPhoto{}, "user_id = ?", []any{userID}},
			{"user", &models.User{}, "id = ?", []any{userID}},
		}
		for _, st := range steps {
			if err := tx.Where(st.query, st.args...).Delete(st.model).Error; err != nil {
				return utils.Internal("delete "+st.what, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.store != nil {
		for _, key := range keys {
			if err := s.store.Delete(ctx, key); err != nil {
				slog.Warn("delete photo object", "user_id", userID, "key", key, "error", err)
			}
		}
	}
	return nil
}
