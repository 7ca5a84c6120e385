package models

import "time"

type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendRejected FriendStatus = "rejected"
)

// Friendship 好友关系，一对用户最多一条记录
type Friendship struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	RequesterID uint         `gorm:"not null;uniqueIndex:idx_friend_pair" json:"requester_id"`
	AddresseeID uint         `gorm:"not null;uniqueIndex:idx_friend_pair;index" json:"addressee_id"`
	Status      FriendStatus `gorm:"type:varchar(16);default:'pending';index" json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
