package models

import "time"

// UserPhoto 个人相册中的照片
type UserPhoto struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"-"`
	ObjectKey string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"key"`
	URL       string    `gorm:"type:varchar(512);not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
