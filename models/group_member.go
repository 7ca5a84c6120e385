package models

import "time"

// GroupChatMember 群组成员
type GroupChatMember struct {
	ID       uint      `gorm:"primaryKey"`
	GroupID  uint      `gorm:"not null;uniqueIndex:idx_group_user"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_group_user;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

// GroupMemberView lists a member for the group info screen.
type GroupMemberView struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar,omitempty"`
}
