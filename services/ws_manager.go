package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"loop-backend/telemetry"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const (
	pingInterval   = 10 * time.Second // 发送 Ping 的间隔
	pongTimeout    = 15 * time.Second // 超过 15 秒未收到 Pong 断开连接
	writeWait      = 10 * time.Second
	maxFrameSize   = 16 << 10
	sendBufferSize = 64

	roomChannelPrefix = "room:"
)

// Client is one websocket connection of an authenticated user.
type Client struct {
	ID     string
	UserID uint
	Email  string

	hub       *Hub
	conn      *websocket.Conn
	rooms     map[string]struct{} // owned by the hub goroutine
	closeOnce sync.Once

	mu     sync.Mutex // guards send and closed
	send   chan []byte
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, id string, userID uint, email string) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Email:  email,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]struct{}),
	}
}

type roomRequest struct {
	client *Client
	room   string
	done   chan bool // buffered; receives whether the request applied
}

type roomFrame struct {
	room    string
	payload []byte
}

// Hub 管理所有连接和房间订阅
//
// Rooms are explicit subscriptions: a connection only receives frames for
// rooms it joined.
//
// With a Redis client every publish goes through the "room:<id>" channel and
// each hub delivers from its pattern subscription, so all instances see it.
// Without one delivery is local.
type Hub struct {
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	join       chan roomRequest
	leave      chan roomRequest
	broadcast  chan roomFrame
	done       chan struct{}

	rdb     *redis.Client
	metrics *telemetry.Metrics
}

func NewHub(rdb *redis.Client, metrics *telemetry.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan roomRequest),
		leave:      make(chan roomRequest),
		broadcast:  make(chan roomFrame, 256),
		done:       make(chan struct{}),
		rdb:        rdb,
		metrics:    metrics,
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	if h.rdb != nil {
		pubsub := h.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
		defer pubsub.Close()
		// wait for the subscription so publishes right after startup are not lost
		if _, err := pubsub.Receive(ctx); err != nil {
			return fmt.Errorf("subscribe to room channels: %w", err)
		}
		go func() {
			for msg := range pubsub.Channel() {
				room := strings.TrimPrefix(msg.Channel, roomChannelPrefix)
				select {
				case h.broadcast <- roomFrame{room: room, payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.ConnectionOpened()
			slog.Debug("ws client registered", "conn_id", c.ID, "user_id", c.UserID)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				slog.Debug("ws client unregistered", "conn_id", c.ID, "user_id", c.UserID)
			}

		case req := <-h.join:
			_, registered := h.clients[req.client]
			if registered {
				members, ok := h.rooms[req.room]
				if !ok {
					members = make(map[*Client]struct{})
					h.rooms[req.room] = members
				}
				members[req.client] = struct{}{}
				req.client.rooms[req.room] = struct{}{}
			}
			req.done <- registered

		case req := <-h.leave:
			h.removeFromRoom(req.client, req.room)
			req.done <- true

		case f := <-h.broadcast:
			for c := range h.rooms[f.room] {
				if !c.trySend(f.payload) {
					h.metrics.BroadcastDropped()
					slog.Warn("ws send buffer full, dropping connection", "conn_id", c.ID, "room", f.room)
					h.drop(c)
				}
			}
		}
	}
}

// drop removes c from every room and closes its send channel. Hub goroutine only.
func (h *Hub) drop(c *Client) {
	for room := range c.rooms {
		h.removeFromRoom(c, room)
	}
	delete(h.clients, c)
	c.closeSend()
	h.metrics.ConnectionClosed()
}

func (h *Hub) removeFromRoom(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	delete(c.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join subscribes c to room and returns once the subscription is active. It
// reports false when c is no longer registered or the hub has stopped.
func (h *Hub) Join(c *Client, room string) bool {
	return h.roomRequest(h.join, c, room)
}

func (h *Hub) Leave(c *Client, room string) {
	h.roomRequest(h.leave, c, room)
}

func (h *Hub) roomRequest(ch chan roomRequest, c *Client, room string) bool {
	req := roomRequest{client: c, room: room, done: make(chan bool, 1)}
	select {
	case ch <- req:
	case <-h.done:
		return false
	}
	select {
	case ok := <-req.done:
		return ok
	case <-h.done:
		return false
	}
}

// Publish fans payload out to every connection subscribed to room.
func (h *Hub) Publish(ctx context.Context, room string, payload []byte) error {
	if h.rdb != nil {
		return h.rdb.Publish(ctx, roomChannelPrefix+room, payload).Err()
	}
	select {
	case h.broadcast <- roomFrame{room: room, payload: payload}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues a frame for this connection only. It never blocks; a full
// buffer drops the frame.
func (c *Client) Send(payload []byte) {
	if !c.trySend(payload) {
		c.hub.metrics.BroadcastDropped()
	}
}

// trySend reports false only when the buffer is full. Frames for a closed
// client are discarded.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadMessages pumps inbound frames to handle until the connection fails.
func (c *Client) ReadMessages(ctx context.Context, handle func(context.Context, *Client, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn_id", c.ID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		handle(ctx, c, msg)
	}
}

// WriteMessages drains the send channel and keeps the connection alive with
// pings.
func (c *Client) WriteMessages() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
