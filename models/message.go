package models

import "time"

// DirectMessage 私聊消息，创建后不可变
type DirectMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SenderID    uint      `gorm:"not null;index" json:"sender_id"`
	RecipientID uint      `gorm:"not null;index" json:"recipient_id"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	Delivered   bool      `gorm:"default:false" json:"delivered"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// MessageRead records that UserID has read MessageID. At most one per pair.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_read_message_user"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_read_message_user;index"`
	ReadAt    time.Time `gorm:"autoCreateTime"`
}

// MessageView is one entry of a direct or group history.
type MessageView struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	From      string `json:"from"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Timestamp renders t the way every API payload carries time: UTC ISO-8601
// with microseconds and a Z suffix.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}
