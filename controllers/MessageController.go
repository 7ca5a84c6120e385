package controllers

import (
	"log/slog"

	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

type MessageController struct {
	messages *services.MessageService
	reads    *services.ReadTracker
	relay    *services.Relay
}

func NewMessageController(messages *services.MessageService, reads *services.ReadTracker, relay *services.Relay) *MessageController {
	return &MessageController{messages: messages, reads: reads, relay: relay}
}

type sendMessageRequest struct {
	To   string `json:"to" binding:"required"`
	Text string `json:"text" binding:"required"`
}

// SendMessage 发送私聊消息，并推送给已加入房间的连接
func (ctl *MessageController) SendMessage(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in sendMessageRequest
	if !bind(c, &in) {
		return
	}
	sent, err := ctl.messages.SendDirect(c.Request.Context(), u.ID, in.To, in.Text)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if ctl.relay != nil {
		if err := ctl.relay.PublishDirect(c.Request.Context(), sent); err != nil {
			slog.Warn("publish direct message", "message_id", sent.Message.ID, "error", err)
		}
	}
	utils.RespondCreated(c, gin.H{"room": sent.Key.String(), "message": sent.Message})
}

// MarkRead 标记消息已读
func (ctl *MessageController) MarkRead(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := ctl.reads.MarkAsRead(c.Request.Context(), u.ID, id); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"message_id": id, "read": true}, nil)
}
