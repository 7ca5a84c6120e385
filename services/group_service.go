package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"loop-backend/models"
	"loop-backend/telemetry"
	"loop-backend/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupService manages group chats, their membership and messages.
type GroupService struct {
	db      *gorm.DB
	users   *UserService
	metrics *telemetry.Metrics
	maxLen  int
}

func NewGroupService(db *gorm.DB, users *UserService, metrics *telemetry.Metrics, maxLen int) *GroupService {
	return &GroupService{db: db, users: users, metrics: metrics, maxLen: maxLen}
}

// CreatedGroup is the result of CreateGroup. Unresolved lists the requested
// emails that matched no user; they are skipped.
type CreatedGroup struct {
	Group      models.GroupChat `json:"group"`
	Members    []string         `json:"members"`
	Unresolved []string         `json:"unresolved"`
}

// CreateGroup creates the group with the creator and every resolvable email as
// members, all in one transaction.
func (s *GroupService) CreateGroup(ctx context.Context, creatorID uint, name string, memberEmails []string) (*CreatedGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.Validation("group name is required")
	}
	creator, err := s.users.GetByID(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	found, err := s.users.FindByEmails(ctx, memberEmails)
	if err != nil {
		return nil, err
	}

	result := &CreatedGroup{Members: []string{creator.Email}, Unresolved: []string{}}
	memberIDs := []uint{creator.ID}
	picked := map[uint]struct{}{creator.ID: {}}
	for _, raw := range memberEmails {
		email := NormalizeEmail(raw)
		if email == "" {
			continue
		}
		u, ok := found[email]
		if !ok {
			result.Unresolved = append(result.Unresolved, email)
			continue
		}
		if _, dup := picked[u.ID]; dup {
			continue
		}
		picked[u.ID] = struct{}{}
		memberIDs = append(memberIDs, u.ID)
		result.Members = append(result.Members, u.Email)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result.Group = models.GroupChat{Name: name, CreatorID: creator.ID}
		if err := tx.Create(&result.Group).Error; err != nil {
			return err
		}
		rows := make([]models.GroupChatMember, 0, len(memberIDs))
		for _, id := range memberIDs {
			rows = append(rows, models.GroupChatMember{GroupID: result.Group.ID, UserID: id})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, utils.Internal("create group", err)
	}
	return result, nil
}

func (s *GroupService) getGroup(ctx context.Context, groupID uint) (*models.GroupChat, error) {
	var g models.GroupChat
	err := s.db.WithContext(ctx).First(&g, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("group %d not found", groupID)
	}
	if err != nil {
		return nil, utils.Internal("find group", err)
	}
	return &g, nil
}

// IsMember reports whether userID belongs to groupID.
func (s *GroupService) IsMember(ctx context.Context, groupID, userID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.GroupChatMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error
	if err != nil {
		return false, utils.Internal("check membership", err)
	}
	return n > 0, nil
}

func (s *GroupService) requireMember(ctx context.Context, groupID, userID uint) (*models.GroupChat, error) {
	g, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ok, err := s.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.Unauthorized("not a member of this group")
	}
	return g, nil
}

// AddMembers adds the given users and returns the emails actually added.
// Unknown emails and existing members are skipped.
func (s *GroupService) AddMembers(ctx context.Context, groupID, actorID uint, emails []string) ([]string, error) {
	if _, err := s.requireMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	found, err := s.users.FindByEmails(ctx, emails)
	if err != nil {
		return nil, err
	}

	added := []string{}
	for _, raw := range emails {
		u, ok := found[NormalizeEmail(raw)]
		if !ok {
			continue
		}
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.GroupChatMember{GroupID: groupID, UserID: u.ID})
		if res.Error != nil {
			return nil, utils.Internal("add member", res.Error)
		}
		if res.RowsAffected > 0 {
			added = append(added, u.Email)
		}
	}
	return added, nil
}

// Leave removes userID from the group.
func (s *GroupService) Leave(ctx context.Context, groupID, userID uint) error {
	if _, err := s.getGroup(ctx, groupID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupChatMember{})
	if res.Error != nil {
		return utils.Internal("leave group", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.Unauthorized("not a member of this group")
	}
	return nil
}

// Members lists the members of a group the viewer belongs to.
func (s *GroupService) Members(ctx context.Context, groupID, viewerID uint) ([]models.GroupMemberView, error) {
	if _, err := s.requireMember(ctx, groupID, viewerID); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN group_chat_members ON group_chat_members.user_id = users.id").
		Where("group_chat_members.group_id = ?", groupID).
		Order("group_chat_members.id ASC").
		Find(&users).Error
	if err != nil {
		return nil, utils.Internal("list members", err)
	}
	out := make([]models.GroupMemberView, 0, len(users))
	for _, u := range users {
		out = append(out, models.GroupMemberView{Username: u.DisplayName(), Email: u.Email, AvatarURL: u.ProfilePictureURL})
	}
	return out, nil
}

// Rename sets a new group name. Any member may rename.
func (s *GroupService) Rename(ctx context.Context, groupID, actorID uint, name string) (*models.GroupChat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.Validation("group name is required")
	}
	g, err := s.requireMember(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(g).Update("name", name).Error; err != nil {
		return nil, utils.Internal("rename group", err)
	}
	return g, nil
}

// SendGroupMessage persists a message from a member of the group.
func (s *GroupService) SendGroupMessage(ctx context.Context, groupID, senderID uint, text string) (*models.MessageView, error) {
	text, err := validateText(text, s.maxLen)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, groupID, senderID); err != nil {
		return nil, err
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	msg := models.GroupMessage{GroupID: groupID, SenderID: senderID, Text: text, Delivered: true}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, utils.Internal("save group message", err)
	}
	s.metrics.MessageSent("group")
	view := groupView(msg, sender)
	return &view, nil
}

type groupHistoryRow struct {
	ID                uint
	Text              string
	CreatedAt         time.Time
	Email             string
	Username          string
	FirstName         string
	LastName          string
	ProfilePictureURL string
}

// GroupHistory returns every message of the group oldest first, annotated with
// the sender's display name and avatar. Only members may read it.
func (s *GroupService) GroupHistory(ctx context.Context, groupID, viewerID uint) ([]models.MessageView, error) {
	if _, err := s.requireMember(ctx, groupID, viewerID); err != nil {
		return nil, err
	}
	var rows []groupHistoryRow
	err := s.db.WithContext(ctx).Model(&models.GroupMessage{}).
		Select("group_messages.id, group_messages.text, group_messages.created_at, users.email, users.username, users.first_name, users.last_name, users.profile_picture_url").
		Joins("LEFT JOIN users ON users.id = group_messages.sender_id").
		Where("group_messages.group_id = ?", groupID).
		Order("group_messages.created_at ASC, group_messages.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.Internal("load group history", err)
	}
	out := make([]models.MessageView, 0, len(rows))
	for _, r := range rows {
		sender := models.User{Email: r.Email, Username: r.Username, FirstName: r.FirstName, LastName: r.LastName, ProfilePictureURL: r.ProfilePictureURL}
		out = append(out, groupView(models.GroupMessage{ID: r.ID, Text: r.Text, CreatedAt: r.CreatedAt}, &sender))
	}
	return out, nil
}

func groupView(m models.GroupMessage, sender *models.User) models.MessageView {
	return models.MessageView{
		ID:        m.ID,
		Text:      m.Text,
		From:      sender.Email,
		Username:  sender.DisplayName(),
		AvatarURL: sender.ProfilePictureURL,
		Timestamp: models.Timestamp(m.CreatedAt),
	}
}
