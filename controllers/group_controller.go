package controllers

import (
	"log/slog"

	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

type GroupController struct {
	groups *services.GroupService
	relay  *services.Relay
}

func NewGroupController(groups *services.GroupService, relay *services.Relay) *GroupController {
	return &GroupController{groups: groups, relay: relay}
}

type createGroupBody struct {
	Name    string   `json:"name" binding:"required"`
	Members []string `json:"members"`
}

type membersBody struct {
	Emails []string `json:"emails" binding:"required,min=1"`
}

// Create 创建群聊
//
// Unresolved emails are reported back, not rejected.
func (ctl *GroupController) Create(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in createGroupBody
	if !bind(c, &in) {
		return
	}
	created, err := ctl.groups.CreateGroup(c.Request.Context(), u.ID, in.Name, in.Members)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, gin.H{
		"group_id":   created.Group.ID,
		"name":       created.Group.Name,
		"room":       services.GroupKey(created.Group.ID).String(),
		"members":    created.Members,
		"unresolved": created.Unresolved,
	})
}

func (ctl *GroupController) Members(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	members, err := ctl.groups.Members(c.Request.Context(), id, u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, members, nil)
}

func (ctl *GroupController) Rename(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Name string `json:"name" binding:"required"`
	}
	if !bind(c, &in) {
		return
	}
	g, err := ctl.groups.Rename(c.Request.Context(), id, u.ID, in.Name)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, g, nil)
}

func (ctl *GroupController) AddMembers(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in membersBody
	if !bind(c, &in) {
		return
	}
	added, err := ctl.groups.AddMembers(c.Request.Context(), id, u.ID, in.Emails)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"added": added}, nil)
}

func (ctl *GroupController) Leave(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := ctl.groups.Leave(c.Request.Context(), id, u.ID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"msg": "left the group"}, nil)
}

func (ctl *GroupController) SendMessage(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Text string `json:"text" binding:"required"`
	}
	if !bind(c, &in) {
		return
	}
	msg, err := ctl.groups.SendGroupMessage(c.Request.Context(), id, u.ID, in.Text)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if ctl.relay != nil {
		if err := ctl.relay.PublishGroup(c.Request.Context(), id, msg); err != nil {
			slog.Warn("publish group message", "group_id", id, "error", err)
		}
	}
	utils.RespondCreated(c, msg)
}
