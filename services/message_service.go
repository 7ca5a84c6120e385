package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"loop-backend/models"
	"loop-backend/telemetry"
	"loop-backend/utils"

	"gorm.io/gorm"
)

// MessageService aggregates direct and group conversations and stores direct
// messages.
type MessageService struct {
	db      *gorm.DB
	users   *UserService
	reads   *ReadTracker
	metrics *telemetry.Metrics
	maxLen  int
}

func NewMessageService(db *gorm.DB, users *UserService, reads *ReadTracker, metrics *telemetry.Metrics, maxLen int) *MessageService {
	return &MessageService{db: db, users: users, reads: reads, metrics: metrics, maxLen: maxLen}
}

// directRow is one direct message as read by the aggregator.
type directRow struct {
	ID          uint
	SenderID    uint
	RecipientID uint
	Text        string
	CreatedAt   time.Time
}

// groupLastRow is the latest message of a group the user belongs to.
type groupLastRow struct {
	GroupID   uint
	GroupName string
	Text      string
	CreatedAt time.Time
}

type summaryEntry struct {
	summary models.ConversationSummary
	at      time.Time
}

// ListConversations returns one summary per direct thread and per group with
// at least one message, newest activity first.
func (s *MessageService) ListConversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var rows []directRow
	err = db.Model(&models.DirectMessage{}).
		Select("id, sender_id, recipient_id, text, created_at").
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.Internal("list direct messages", err)
	}

	counterparts, err := s.counterpartUsers(ctx, userID, rows)
	if err != nil {
		return nil, err
	}

	entries := make([]summaryEntry, 0)
	seen := make(map[ConversationKey]struct{})
	for _, row := range rows {
		otherID := row.RecipientID
		if row.SenderID != userID {
			otherID = row.SenderID
		}
		other, ok := counterparts[otherID]
		if !ok {
			slog.Warn("direct message references missing user", "message_id", row.ID, "user_id", otherID)
			continue
		}
		key := DirectKey(me.Email, other.Email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		summary, err := s.directSummary(ctx, me, &other, key, row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, summaryEntry{summary: summary, at: row.CreatedAt})
	}

	groups, err := s.latestGroupMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		entries = append(entries, summaryEntry{
			summary: models.ConversationSummary{
				ConversationID: GroupKey(g.GroupID).String(),
				IsGroup:        true,
				LastMessage:    models.LastMessage{Text: g.Text, Timestamp: models.Timestamp(g.CreatedAt)},
				GroupID:        g.GroupID,
				GroupName:      g.GroupName,
			},
			at: g.CreatedAt,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	out := make([]models.ConversationSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.summary)
	}
	return out, nil
}

func (s *MessageService) directSummary(ctx context.Context, me, other *models.User, key ConversationKey, latest directRow) (models.ConversationSummary, error) {
	unread, err := s.reads.UnreadCount(ctx, me.ID, other.ID)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	fromMe := latest.SenderID == me.ID
	recipientSeen := false
	if fromMe {
		if recipientSeen, err = s.reads.Seen(ctx, latest.ID, other.ID); err != nil {
			return models.ConversationSummary{}, err
		}
	}
	return models.ConversationSummary{
		ConversationID:           key.String(),
		LastMessage:              models.LastMessage{Text: latest.Text, Timestamp: models.Timestamp(latest.CreatedAt)},
		OtherParticipantEmail:    other.Email,
		OtherParticipantUsername: other.DisplayName(),
		OtherParticipantAvatar:   other.ProfilePictureURL,
		UnreadCount:              &unread,
		FromMe:                   &fromMe,
		RecipientSeen:            &recipientSeen,
	}, nil
}

func (s *MessageService) counterpartUsers(ctx context.Context, userID uint, rows []directRow) (map[uint]models.User, error) {
	ids := make([]uint, 0)
	known := make(map[uint]struct{})
	for _, r := range rows {
		for _, id := range []uint{r.SenderID, r.RecipientID} {
			if _, ok := known[id]; !ok {
				known[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	out := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, utils.Internal("load participants", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *MessageService) latestGroupMessages(ctx context.Context, userID uint) ([]groupLastRow, error) {
	db := s.db.WithContext(ctx)

	var groups []models.GroupChat
	err := db.Model(&models.GroupChat{}).
		Joins("JOIN group_chat_members ON group_chat_members.group_id = group_chats.id").
		Where("group_chat_members.user_id = ?", userID).
		Find(&groups).Error
	if err != nil {
		return nil, utils.Internal("list groups", err)
	}

	out := make([]groupLastRow, 0, len(groups))
	for _, g := range groups {
		var last []models.GroupMessage
		err := db.Where("group_id = ?", g.ID).
			Order("created_at DESC, id DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			return nil, utils.Internal("latest group message", err)
		}
		if len(last) == 0 {
			continue
		}
		out = append(out, groupLastRow{GroupID: g.ID, GroupName: g.Name, Text: last[0].Text, CreatedAt: last[0].CreatedAt})
	}
	return out, nil
}

// DirectHistory returns the thread between userID and the counterpart, oldest
// first. Viewing it marks every unread message addressed to userID as read.
func (s *MessageService) DirectHistory(ctx context.Context, userID uint, counterpartEmail string) ([]models.MessageView, error) {
	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	other, err := s.users.GetByEmail(ctx, counterpartEmail)
	if err != nil {
		return nil, err
	}

	var msgs []models.DirectMessage
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.reads.markThreadRead(tx, me.ID, other.ID); err != nil {
			return err
		}
		return tx.Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			me.ID, other.ID, other.ID, me.ID).
			Order("created_at ASC, id ASC").
			Find(&msgs).Error
	})
	if err != nil {
		if utils.KindOf(err) != utils.KindInternal {
			return nil, err
		}
		return nil, utils.Internal("load history", err)
	}

	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		from := me
		if m.SenderID == other.ID {
			from = other
		}
		out = append(out, directView(m, from))
	}
	return out, nil
}

// DirectSent is a persisted direct message together with its room.
type DirectSent struct {
	Key       ConversationKey
	Recipient *models.User
	Message   models.MessageView
}

// SendDirect persists a message from senderID to the user with recipientEmail.
func (s *MessageService) SendDirect(ctx context.Context, senderID uint, recipientEmail, text string) (*DirectSent, error) {
	text, err := validateText(text, s.maxLen)
	if err != nil {
		return nil, err
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.users.GetByEmail(ctx, recipientEmail)
	if err != nil {
		return nil, err
	}

	msg := models.DirectMessage{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Text:        text,
		Delivered:   true,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, utils.Internal("save message", err)
	}
	s.metrics.MessageSent("direct")
	return &DirectSent{
		Key:       DirectKey(sender.Email, recipient.Email),
		Recipient: recipient,
		Message:   directView(msg, sender),
	}, nil
}

func directView(m models.DirectMessage, from *models.User) models.MessageView {
	return models.MessageView{
		ID:        m.ID,
		Text:      m.Text,
		From:      from.Email,
		Timestamp: models.Timestamp(m.CreatedAt),
	}
}

// validateText trims text and checks it is non-empty and at most max runes.
func validateText(text string, max int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", utils.Validation("message text is required")
	}
	if max > 0 && utf8.RuneCountInString(text) > max {
		return "", utils.Validation("message exceeds %d characters", max)
	}
	return text, nil
}
