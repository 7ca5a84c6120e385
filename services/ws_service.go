package services

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// NewUpgrader builds the websocket upgrader. A "*" entry allows any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
}

// HandleWebSocket upgrades the request for an authenticated user, registers
// the connection and serves it until it closes.
func HandleWebSocket(ctx context.Context, upgrader *websocket.Upgrader, hub *Hub, relay *Relay,
	w http.ResponseWriter, r *http.Request, userID uint, email string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(hub, conn, uuid.NewString(), userID, email)
	hub.Register(client)

	go client.WriteMessages()
	go client.ReadMessages(ctx, relay.Handle)
	return nil
}
