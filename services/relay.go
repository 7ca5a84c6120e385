package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"loop-backend/models"
	"loop-backend/telemetry"
	"loop-backend/utils"
)

// Inbound and outbound realtime events.
const (
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
	EventSendMessage      = "send_message"
	EventSendGroupMessage     = "send_group_message"
	EventSendCommunityMessage = "send_community_message"
	EventMarkRead             = "mark_read"
	EventReceiveMessage       = "receive_message"
	EventReceiveGroup         = "receive_group_message"
	EventReceiveCommunity     = "receive_community_message"
	EventJoined               = "joined"
	EventLeft                 = "left"
	EventError                = "error"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type sendMessagePayload struct {
	From string `json:"from"`
	Room string `json:"room"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type sendGroupPayload struct {
	From    string `json:"from"`
	GroupID uint   `json:"groupId"`
	Text    string `json:"text"`
}

type sendCommunityPayload struct {
	From        string `json:"from"`
	CommunityID uint   `json:"communityId"`
	Text        string `json:"text"`
}

type markReadPayload struct {
	MessageID uint `json:"messageId"`
}

// ErrorEvent is sent back to the emitting connection when an event fails.
type ErrorEvent struct {
	Event   string     `json:"event"`
	Kind    utils.Kind `json:"kind"`
	Message string     `json:"message"`
}

// Relay persists realtime messages through the services and fans them out to
// room subscribers. Delivery is best effort to connected subscribers only.
type Relay struct {
	hub         *Hub
	messages    *MessageService
	groups      *GroupService
	communities *CommunityService
	reads       *ReadTracker
	metrics     *telemetry.Metrics
}

func NewRelay(hub *Hub, messages *MessageService, groups *GroupService, communities *CommunityService, reads *ReadTracker, metrics *telemetry.Metrics) *Relay {
	return &Relay{hub: hub, messages: messages, groups: groups, communities: communities, reads: reads, metrics: metrics}
}

// Handle dispatches one inbound frame from c.
func (r *Relay) Handle(ctx context.Context, c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.fail(c, "", utils.Validation("invalid event frame"))
		return
	}

	var err error
	switch env.Event {
	case EventJoinRoom:
		err = r.joinRoom(ctx, c, env.Data)
	case EventLeaveRoom:
		err = r.leaveRoom(c, env.Data)
	case EventSendMessage:
		err = r.sendMessage(ctx, c, env.Data)
	case EventSendGroupMessage:
		err = r.sendGroupMessage(ctx, c, env.Data)
	case EventSendCommunityMessage:
		err = r.sendCommunityMessage(ctx, c, env.Data)
	case EventMarkRead:
		err = r.markRead(ctx, c, env.Data)
	default:
		err = utils.Validation("unsupported event %q", env.Event)
	}
	if err != nil {
		r.fail(c, env.Event, err)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return utils.Validation("missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return utils.Validation("invalid event data")
	}
	return nil
}

// authorizeRoom resolves room for c. Direct rooms must include the user;
// group and community rooms require membership.
func (r *Relay) authorizeRoom(ctx context.Context, c *Client, room string) (ConversationKey, error) {
	if key, ok := ParseGroupRoom(room); ok {
		member, err := r.groups.IsMember(ctx, key.GroupID, c.UserID)
		if err != nil {
			return ConversationKey{}, err
		}
		if !member {
			return ConversationKey{}, utils.Unauthorized("not a member of this group")
		}
		return key, nil
	}
	if key, ok := ParseCommunityRoom(room); ok {
		member, err := r.communities.IsMember(ctx, key.CommunityID, c.UserID)
		if err != nil {
			return ConversationKey{}, err
		}
		if !member {
			return ConversationKey{}, utils.Unauthorized("not a member of this community")
		}
		return key, nil
	}
	if key, ok := ParseDirectRoom(room, c.Email); ok {
		return key, nil
	}
	return ConversationKey{}, utils.Unauthorized("cannot join room %q", room)
}

func (r *Relay) joinRoom(ctx context.Context, c *Client, data json.RawMessage) error {
	var p roomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	key, err := r.authorizeRoom(ctx, c, p.Room)
	if err != nil {
		return err
	}
	if !r.hub.Join(c, key.String()) {
		return utils.Conflict("connection is no longer registered")
	}
	r.reply(c, EventJoined, roomPayload{Room: key.String()})
	return nil
}

func (r *Relay) leaveRoom(c *Client, data json.RawMessage) error {
	var p roomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	r.hub.Leave(c, p.Room)
	r.reply(c, EventLeft, p)
	return nil
}

func (r *Relay) sendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p sendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.From != "" && NormalizeEmail(p.From) != c.Email {
		return utils.Unauthorized("sender does not match the connection")
	}
	recipient := p.To
	if p.Room != "" {
		key, ok := ParseDirectRoom(p.Room, c.Email)
		if !ok {
			return utils.Validation("invalid room %q", p.Room)
		}
		recipient, _ = key.Counterpart(c.Email)
	}
	if recipient == "" {
		return utils.Validation("room or recipient is required")
	}

	sent, err := r.messages.SendDirect(ctx, c.UserID, recipient, p.Text)
	if err != nil {
		return err
	}
	// the message is stored; a failed fan-out must not invite a resend
	if err := r.PublishDirect(ctx, sent); err != nil {
		slog.Warn("publish direct message", "message_id", sent.Message.ID, "error", err)
	}
	return nil
}

func (r *Relay) sendGroupMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p sendGroupPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.From != "" && NormalizeEmail(p.From) != c.Email {
		return utils.Unauthorized("sender does not match the connection")
	}
	if p.GroupID == 0 {
		return utils.Validation("groupId is required")
	}
	view, err := r.groups.SendGroupMessage(ctx, p.GroupID, c.UserID, p.Text)
	if err != nil {
		return err
	}
	if err := r.PublishGroup(ctx, p.GroupID, view); err != nil {
		slog.Warn("publish group message", "group_id", p.GroupID, "message_id", view.ID, "error", err)
	}
	return nil
}

func (r *Relay) sendCommunityMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p sendCommunityPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.From != "" && NormalizeEmail(p.From) != c.Email {
		return utils.Unauthorized("sender does not match the connection")
	}
	if p.CommunityID == 0 {
		return utils.Validation("communityId is required")
	}
	view, err := r.communities.SendCommunityMessage(ctx, p.CommunityID, c.UserID, p.Text)
	if err != nil {
		return err
	}
	if err := r.PublishCommunity(ctx, p.CommunityID, view); err != nil {
		slog.Warn("publish community message", "community_id", p.CommunityID, "message_id", view.ID, "error", err)
	}
	return nil
}

func (r *Relay) markRead(ctx context.Context, c *Client, data json.RawMessage) error {
	var p markReadPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.MessageID == 0 {
		return utils.Validation("messageId is required")
	}
	return r.reads.MarkAsRead(ctx, c.UserID, p.MessageID)
}

// PublishDirect broadcasts a message stored through the REST surface.
func (r *Relay) PublishDirect(ctx context.Context, sent *DirectSent) error {
	return r.publish(ctx, sent.Key.String(), EventReceiveMessage, sent.Message)
}

// PublishGroup broadcasts a group message stored through the REST surface.
func (r *Relay) PublishGroup(ctx context.Context, groupID uint, view *models.MessageView) error {
	return r.publish(ctx, GroupKey(groupID).String(), EventReceiveGroup, view)
}

// PublishCommunity broadcasts a community chat message.
func (r *Relay) PublishCommunity(ctx context.Context, communityID uint, view *models.MessageView) error {
	return r.publish(ctx, CommunityKey(communityID).String(), EventReceiveCommunity, view)
}

func (r *Relay) publish(ctx context.Context, room, event string, data any) error {
	frame, err := encode(event, data)
	if err != nil {
		return utils.Internal("encode event", err)
	}
	if err := r.hub.Publish(ctx, room, frame); err != nil {
		return utils.Internal("publish event", err)
	}
	return nil
}

func (r *Relay) reply(c *Client, event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		slog.Error("encode reply", "event", event, "error", err)
		return
	}
	c.Send(frame)
}

func (r *Relay) fail(c *Client, event string, err error) {
	kind := utils.KindOf(err)
	r.metrics.RelayError(event, string(kind))
	if kind == utils.KindInternal {
		slog.Error("relay event failed", "event", event, "user_id", c.UserID, "error", err)
	} else {
		slog.Debug("relay event rejected", "event", event, "user_id", c.UserID, "error", err)
	}
	r.reply(c, EventError, ErrorEvent{Event: event, Kind: kind, Message: utils.MessageOf(err)})
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
