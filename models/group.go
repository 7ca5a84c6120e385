package models

import "time"

// GroupChat 群聊
type GroupChat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	CreatorID uint      `gorm:"not null;index" json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMessage 群聊消息
type GroupMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   uint      `gorm:"not null;index" json:"group_id"`
	SenderID  uint      `gorm:"not null" json:"sender_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Delivered bool      `gorm:"default:false" json:"delivered"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
