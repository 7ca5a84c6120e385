package controllers

import (
	"context"
	"log/slog"

	"loop-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WSController struct {
	ctx      context.Context
	upgrader *websocket.Upgrader
	hub      *services.Hub
	relay    *services.Relay
}

// NewWSController serves connections for the lifetime of ctx, not of the
// upgrade request.
func NewWSController(ctx context.Context, upgrader *websocket.Upgrader, hub *services.Hub, relay *services.Relay) *WSController {
	return &WSController{ctx: ctx, upgrader: upgrader, hub: hub, relay: relay}
}

func (ctl *WSController) Serve(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	if err := services.HandleWebSocket(ctl.ctx, ctl.upgrader, ctl.hub, ctl.relay, c.Writer, c.Request, u.ID, u.Email); err != nil {
		// the upgrader has already written the HTTP error
		slog.Debug("websocket upgrade failed", "user_id", u.ID, "error", err)
	}
}
