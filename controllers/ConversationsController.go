package controllers

import (
	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

// ConversationsController serves the aggregated conversation list and the
// direct and group histories.
type ConversationsController struct {
	messages *services.MessageService
	groups   *services.GroupService
}

func NewConversationsController(messages *services.MessageService, groups *services.GroupService) *ConversationsController {
	return &ConversationsController{messages: messages, groups: groups}
}

// GetConversations 获取当前用户的会话列表
func (ctl *ConversationsController) GetConversations(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	convs, err := ctl.messages.ListConversations(c.Request.Context(), u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, convs, nil)
}

// GetDirectHistory returns the thread with :email and marks it read.
func (ctl *ConversationsController) GetDirectHistory(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	history, err := ctl.messages.DirectHistory(c.Request.Context(), u.ID, c.Param("email"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	other := services.NormalizeEmail(c.Param("email"))
	utils.RespondSuccess(c, history, gin.H{"room": services.DirectKey(u.Email, other).String()})
}

func (ctl *ConversationsController) GetGroupHistory(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	history, err := ctl.groups.GroupHistory(c.Request.Context(), id, u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, history, gin.H{"room": services.GroupKey(id).String()})
}
