package controllers

import (
	"strings"
	"time"

	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

type EventController struct {
	events *services.EventService
}

func NewEventController(events *services.EventService) *EventController {
	return &EventController{events: events}
}

type announcementBody struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
}

type createEventBody struct {
	Title       string `json:"title" binding:"required"`
	Location    string `json:"location" binding:"required"`
	Date        string `json:"date" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// eventDateLayouts are tried in order; a date without a zone is UTC.
var eventDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseEventDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CreateAnnouncement 发布公告，仅限教职员工
func (ctl *EventController) CreateAnnouncement(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in announcementBody
	if !bind(c, &in) {
		return
	}
	a, err := ctl.events.CreateAnnouncement(c.Request.Context(), u.ID, in.Title, in.Description)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, a)
}

func (ctl *EventController) Announcements(c *gin.Context) {
	list, err := ctl.events.Announcements(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, gin.H{"count": len(list)})
}

func (ctl *EventController) Create(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in createEventBody
	if !bind(c, &in) {
		return
	}
	date, ok := parseEventDate(in.Date)
	if !ok {
		utils.RespondError(c, utils.Validation("invalid date format, use ISO 8601"))
		return
	}
	view, err := ctl.events.CreateEvent(c.Request.Context(), u.ID, services.CreateEventInput{
		Title: in.Title, Location: in.Location, Date: date, Description: in.Description,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, view)
}

func (ctl *EventController) Upcoming(c *gin.Context) {
	list, err := ctl.events.UpcomingEvents(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, gin.H{"count": len(list)})
}

func (ctl *EventController) RSVP(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := ctl.events.RSVP(c.Request.Context(), id, u.ID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"msg": "RSVP successful"}, nil)
}

func (ctl *EventController) RSVPed(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	list, err := ctl.events.RSVPed(c.Request.Context(), u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, gin.H{"count": len(list)})
}
