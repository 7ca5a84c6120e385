package models

import (
	"strings"
	"time"
)

// User 用户模型
type User struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email             string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	PasswordHash      string    `gorm:"not null" json:"-"`
	Username          string    `gorm:"type:varchar(64)" json:"username"`
	FirstName         string    `json:"firstname"`
	LastName          string    `json:"lastname"`
	YearLevel         string    `json:"year_level"`
	Degree            string    `json:"degree"`
	Pronoun           string    `json:"pronoun"`
	Bio               string    `gorm:"type:text" json:"bio"`
	ProfilePictureURL string    `json:"profile_picture_url"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DisplayName falls back to the email when no username or name is set.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	return u.Email
}

// UserProfile is the public view of a user.
type UserProfile struct {
	ID                uint   `json:"id"`
	Email             string `json:"email"`
	Username          string `json:"username"`
	FirstName         string `json:"firstname"`
	LastName          string `json:"lastname"`
	FullName          string `json:"full_name"`
	YearLevel         string `json:"year_level"`
	Degree            string `json:"degree"`
	Pronoun           string `json:"pronoun"`
	Bio               string `json:"bio"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

func (u *User) ToProfile() UserProfile {
	return UserProfile{
		ID:                u.ID,
		Email:             u.Email,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		FullName:          strings.TrimSpace(u.FirstName + " " + u.LastName),
		YearLevel:         u.YearLevel,
		Degree:            u.Degree,
		Pronoun:           u.Pronoun,
		Bio:               u.Bio,
		ProfilePictureURL: u.ProfilePictureURL,
	}
}
