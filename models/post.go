package models

import "time"

type Post struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	AuthorID    uint      `gorm:"not null;index" json:"author_id"`
	CommunityID uint      `gorm:"not null;index" json:"community_id"`
	Topic       string    `json:"topic"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"type:varchar(36);not null;index" json:"post_id"`
	UserID    uint      `gorm:"not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Like 点赞，(post, user) 唯一
type Like struct {
	PostID    string    `gorm:"type:varchar(36);primaryKey"`
	UserID    uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type CommentView struct {
	Username  string    `json:"user"`
	PostID    string    `json:"post_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type PostView struct {
	ID            string        `json:"id"`
	AuthorName    string        `json:"author_name"`
	AuthorPhoto   string        `json:"author_photo_url"`
	CommunityID   uint          `json:"community_id"`
	CommunityName string        `json:"community_name"`
	Topic         string        `json:"topic"`
	Content       string        `json:"content"`
	CreatedAt     time.Time     `json:"created_at"`
	Likes         int64         `json:"likes"`
	LikedByUser   bool          `json:"liked_by_user"`
	Comments      []CommentView `json:"comments"`
}
