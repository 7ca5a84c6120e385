package models

import "time"

// Category is a topic/subtopic pair a community can be tagged with.
type Category struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Topic    string `gorm:"type:varchar(128);not null;uniqueIndex:idx_topic_sub" json:"topic"`
	Subtopic string `gorm:"type:varchar(128);not null;uniqueIndex:idx_topic_sub" json:"subtopic"`
}

type Community struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"type:varchar(128);not null;index" json:"name"`
	Description         string    `gorm:"type:text" json:"description"`
	OwnerID             uint      `gorm:"not null;index" json:"owner_id"`
	CommunityPictureURL string    `json:"community_picture,omitempty"`
	Members             int       `gorm:"default:0" json:"members"`
	CreatedAt           time.Time `json:"created_at"`
}

type CommunityCategory struct {
	CommunityID uint `gorm:"primaryKey"`
	CategoryID  uint `gorm:"primaryKey"`
}

// CommunityMember 社区成员
type CommunityMember struct {
	CommunityID uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"primaryKey;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// CommunityMessage is a message in a community-wide chat room.
type CommunityMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CommunityID uint      `gorm:"not null;index" json:"community_id"`
	SenderID    uint      `gorm:"not null;index" json:"sender_id"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	Delivered   bool      `gorm:"default:false" json:"delivered"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// CommunityView is the serialized form of a community with owner and categories.
type CommunityView struct {
	ID                  uint       `json:"id"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	Members             int        `json:"members"`
	CommunityPictureURL string     `json:"community_picture,omitempty"`
	OwnerEmail          string     `json:"owner_email"`
	OwnerUsername       string     `json:"owner_username"`
	Categories          []Category `json:"categories"`
}

// MemberView is a community member annotated with the viewer's friendship.
type MemberView struct {
	UserProfile
	IsFriend bool `json:"is_friend"`
}
