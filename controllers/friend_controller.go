package controllers

import (
	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

type FriendController struct {
	friends *services.FriendService
}

func NewFriendController(friends *services.FriendService) *FriendController {
	return &FriendController{friends: friends}
}

type friendRequestBody struct {
	RecipientEmail string `json:"recipient_email" binding:"required"`
}

type respondBody struct {
	Action string `json:"action" binding:"required,oneof=accept reject"`
}

func (ctl *FriendController) SendRequest(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in friendRequestBody
	if !bind(c, &in) {
		return
	}
	req, err := ctl.friends.SendRequest(c.Request.Context(), u.ID, in.RecipientEmail)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, req)
}

func (ctl *FriendController) Respond(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in respondBody
	if !bind(c, &in) {
		return
	}
	view, err := ctl.friends.Respond(c.Request.Context(), id, u.ID, in.Action == "accept")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, view, nil)
}

func (ctl *FriendController) List(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	friends, err := ctl.friends.ListFriends(c.Request.Context(), u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, profiles(friends), nil)
}

func (ctl *FriendController) Pending(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	reqs, err := ctl.friends.Pending(c.Request.Context(), u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, reqs, nil)
}

func (ctl *FriendController) Suggestions(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	users, err := ctl.friends.Suggestions(c.Request.Context(), u.ID, 0)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, profiles(users), nil)
}
