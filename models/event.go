package models

import "time"

// Announcement 公告，只有教职员工可以发布
type Announcement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AuthorID    uint      `gorm:"not null;index" json:"author_id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	CreatedAt   time.Time `gorm:"index" json:"date"`
}

// Event 活动
type Event struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"type:varchar(255);not null" json:"title"`
	Location      string    `gorm:"type:varchar(255);not null" json:"location"`
	Date          time.Time `gorm:"not null;index" json:"date"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	CoordinatorID uint      `gorm:"index" json:"coordinator_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventRSVP is unique per (event, user).
type EventRSVP struct {
	EventID   uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"primaryKey;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type EventCoordinator struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type EventView struct {
	ID          uint              `json:"id"`
	Title       string            `json:"title"`
	Location    string            `json:"location"`
	Date        string            `json:"date"`
	Description string            `json:"description"`
	Coordinator *EventCoordinator `json:"coordinator"`
}

// ToView renders e with its coordinator, which may be nil.
func (e *Event) ToView(coordinator *User) EventView {
	v := EventView{
		ID:          e.ID,
		Title:       e.Title,
		Location:    e.Location,
		Date:        Timestamp(e.Date),
		Description: e.Description,
	}
	if coordinator != nil {
		v.Coordinator = &EventCoordinator{ID: coordinator.ID, Name: coordinator.DisplayName()}
	}
	return v
}
