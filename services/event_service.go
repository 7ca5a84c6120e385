package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"loop-backend/models"
	"loop-backend/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnnouncementWindow is how far back the announcement board reaches.
const AnnouncementWindow = 30 * 24 * time.Hour

// EventService runs the homepage board: staff announcements, events and RSVPs.
type EventService struct {
	db          *gorm.DB
	users       *UserService
	staffDomain string
	now         func() time.Time
}

// NewEventService treats users whose email is in staffDomain as staff.
func NewEventService(db *gorm.DB, users *UserService, staffDomain string) *EventService {
	return &EventService{
		db:          db,
		users:       users,
		staffDomain: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(staffDomain), "@")),
		now:         time.Now,
	}
}

// IsStaff reports whether email belongs to the staff domain.
func (s *EventService) IsStaff(email string) bool {
	return s.staffDomain != "" && strings.HasSuffix(NormalizeEmail(email), "@"+s.staffDomain)
}

func (s *EventService) CreateAnnouncement(ctx context.Context, authorID uint, title, description string) (*models.Announcement, error) {
	author, err := s.users.GetByID(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if !s.IsStaff(author.Email) {
		return nil, utils.Unauthorized("only staff can make announcements")
	}
	title, description = strings.TrimSpace(title), strings.TrimSpace(description)
	if title == "" || description == "" {
		return nil, utils.Validation("missing required fields")
	}
	a := models.Announcement{AuthorID: authorID, Title: title, Description: description, CreatedAt: s.now()}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, utils.Internal("save announcement", err)
	}
	return &a, nil
}

// Announcements lists the announcements of the last 30 days, newest first.
func (s *EventService) Announcements(ctx context.Context) ([]models.Announcement, error) {
	out := []models.Announcement{}
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", s.now().Add(-AnnouncementWindow)).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, utils.Internal("list announcements", err)
	}
	return out, nil
}

type CreateEventInput struct {
	Title       string
	Location    string
	Date        time.Time
	Description string
}

func (s *EventService) CreateEvent(ctx context.Context, coordinatorID uint, in CreateEventInput) (*models.EventView, error) {
	coordinator, err := s.users.GetByID(ctx, coordinatorID)
	if err != nil {
		return nil, err
	}
	e := models.Event{
		Title:         strings.TrimSpace(in.Title),
		Location:      strings.TrimSpace(in.Location),
		Date:          in.Date.UTC(),
		Description:   strings.TrimSpace(in.Description),
		CoordinatorID: coordinatorID,
	}
	if e.Title == "" || e.Location == "" || e.Description == "" || in.Date.IsZero() {
		return nil, utils.Validation("missing required fields")
	}
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return nil, utils.Internal("save event", err)
	}
	v := e.ToView(coordinator)
	return &v, nil
}

// UpcomingEvents lists events from now on, soonest first.
func (s *EventService) UpcomingEvents(ctx context.Context) ([]models.EventView, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("date >= ?", s.now().UTC()).
		Order("date ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, utils.Internal("list events", err)
	}
	return s.views(ctx, events)
}

// RSVP registers userID for the event; a second RSVP is a Conflict.
func (s *EventService) RSVP(ctx context.Context, eventID, userID uint) error {
	var e models.Event
	err := s.db.WithContext(ctx).First(&e, eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NotFound("event not found")
	}
	if err != nil {
		return utils.Internal("find event", err)
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.EventRSVP{EventID: eventID, UserID: userID})
	if res.Error != nil {
		return utils.Internal("save rsvp", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.Conflict("already RSVPed")
	}
	return nil
}

// RSVPed lists the events userID has RSVPed to, by date.
func (s *EventService) RSVPed(ctx context.Context, userID uint) ([]models.EventView, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Joins("JOIN event_rsvps ON event_rsvps.event_id = events.id").
		Where("event_rsvps.user_id = ?", userID).
		Order("events.date ASC, events.id ASC").
		Find(&events).Error
	if err != nil {
		return nil, utils.Internal("list rsvped events", err)
	}
	return s.views(ctx, events)
}

func (s *EventService) views(ctx context.Context, events []models.Event) ([]models.EventView, error) {
	out := make([]models.EventView, 0, len(events))
	if len(events) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.CoordinatorID)
	}
	var coordinators []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&coordinators).Error; err != nil {
		return nil, utils.Internal("load coordinators", err)
	}
	byID := make(map[uint]*models.User, len(coordinators))
	for i := range coordinators {
		byID[coordinators[i].ID] = &coordinators[i]
	}
	for i := range events {
		out = append(out, events[i].ToView(byID[events[i].CoordinatorID]))
	}
	return out, nil
}
