package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"loop-backend/models"
	"loop-backend/telemetry"
	"loop-backend/utils"

	"gorm.io/gorm"
)

// CommunityService manages communities, their membership and community chat.
type CommunityService struct {
	db      *gorm.DB
	users   *UserService
	friends *FriendService
	store   ObjectStore
	metrics *telemetry.Metrics
	maxLen  int
}

func NewCommunityService(db *gorm.DB, users *UserService, friends *FriendService, store ObjectStore, metrics *telemetry.Metrics, maxLen int) *CommunityService {
	return &CommunityService{db: db, users: users, friends: friends, store: store, metrics: metrics, maxLen: maxLen}
}

func (s *CommunityService) Categories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&cats).Error; err != nil {
		return nil, utils.Internal("list categories", err)
	}
	return cats, nil
}

type CreateCommunityInput struct {
	Name        string
	Description string
	CategoryIDs []uint
}

// Create makes ownerID the owner and first member of a new community.
func (s *CommunityService) Create(ctx context.Context, ownerID uint, in CreateCommunityInput) (*models.CommunityView, error) {
	name, desc := strings.TrimSpace(in.Name), strings.TrimSpace(in.Description)
	if name == "" || desc == "" || len(in.CategoryIDs) == 0 {
		return nil, utils.Validation("missing required fields")
	}
	if _, err := s.users.GetByID(ctx, ownerID); err != nil {
		return nil, err
	}

	var community models.Community
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Category{}).Where("id IN ?", in.CategoryIDs).Count(&n).Error; err != nil {
			return utils.Internal("check categories", err)
		}
		if int(n) != len(uniqueIDs(in.CategoryIDs)) {
			return utils.Validation("category does not exist")
		}

		community = models.Community{Name: name, Description: desc, OwnerID: ownerID, Members: 1}
		if err := tx.Create(&community).Error; err != nil {
			return utils.Internal("create community", err)
		}
		if err := tx.Create(&models.CommunityMember{CommunityID: community.ID, UserID: ownerID}).Error; err != nil {
			return utils.Internal("add owner", err)
		}
		links := make([]models.CommunityCategory, 0, len(in.CategoryIDs))
		for _, id := range uniqueIDs(in.CategoryIDs) {
			links = append(links, models.CommunityCategory{CommunityID: community.ID, CategoryID: id})
		}
		if err := tx.Create(&links).Error; err != nil {
			return utils.Internal("link categories", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, community.ID)
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (s *CommunityService) find(ctx context.Context, id uint) (*models.Community, error) {
	var c models.Community
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("community not found")
	}
	if err != nil {
		return nil, utils.Internal("find community", err)
	}
	return &c, nil
}

func (s *CommunityService) Get(ctx context.Context, id uint) (*models.CommunityView, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, []models.Community{*c})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Search matches the name, optionally restricted to any of categoryIDs, most
// members first.
func (s *CommunityService) Search(ctx context.Context, query string, categoryIDs []uint) ([]models.CommunityView, error) {
	q := s.db.WithContext(ctx).Model(&models.Community{})
	if len(categoryIDs) > 0 {
		q = q.Where("id IN (?)", s.db.Model(&models.CommunityCategory{}).
			Select("community_id").
			Where("category_id IN ?", categoryIDs))
	}
	if term := strings.TrimSpace(query); term != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	var list []models.Community
	if err := q.Order("members DESC, id ASC").Find(&list).Error; err != nil {
		return nil, utils.Internal("search communities", err)
	}
	return s.views(ctx, list)
}

// Joined lists the communities userID is a member of.
func (s *CommunityService) Joined(ctx context.Context, userID uint) ([]models.CommunityView, error) {
	var list []models.Community
	err := s.db.WithContext(ctx).
		Joins("JOIN community_members ON community_members.community_id = communities.id").
		Where("community_members.user_id = ?", userID).
		Order("communities.id ASC").
		Find(&list).Error
	if err != nil {
		return nil, utils.Internal("list joined communities", err)
	}
	return s.views(ctx, list)
}

func (s *CommunityService) IsMember(ctx context.Context, communityID, userID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.CommunityMember{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&n).Error
	if err != nil {
		return false, utils.Internal("check membership", err)
	}
	return n > 0, nil
}

func (s *CommunityService) Join(ctx context.Context, communityID, userID uint) error {
	if _, err := s.find(ctx, communityID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.CommunityMember{}).
			Where("community_id = ? AND user_id = ?", communityID, userID).
			Count(&n).Error; err != nil {
			return utils.Internal("check membership", err)
		}
		if n > 0 {
			return utils.Conflict("already a member of this community")
		}
		if err := tx.Create(&models.CommunityMember{CommunityID: communityID, UserID: userID}).Error; err != nil {
			return utils.Internal("join community", err)
		}
		return s.adjustMembers(tx, communityID, 1)
	})
}

// Leave removes a member. The owner cannot leave before handing over ownership.
func (s *CommunityService) Leave(ctx context.Context, communityID, userID uint) error {
	c, err := s.find(ctx, communityID)
	if err != nil {
		return err
	}
	if c.OwnerID == userID {
		return utils.Validation("owner cannot leave the community; assign a new owner first")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("community_id = ? AND user_id = ?", communityID, userID).Delete(&models.CommunityMember{})
		if res.Error != nil {
			return utils.Internal("leave community", res.Error)
		}
		if res.RowsAffected == 0 {
			return utils.Unauthorized("you are not a member of this community")
		}
		return s.adjustMembers(tx, communityID, -1)
	})
}

func (s *CommunityService) adjustMembers(tx *gorm.DB, communityID uint, delta int) error {
	err := tx.Model(&models.Community{}).Where("id = ?", communityID).
		UpdateColumn("members", gorm.Expr("members + ?", delta)).Error
	if err != nil {
		return utils.Internal("update member count", err)
	}
	return nil
}

// Members lists the members, flagging the viewer's friends.
func (s *CommunityService) Members(ctx context.Context, communityID, viewerID uint) ([]models.MemberView, error) {
	if _, err := s.find(ctx, communityID); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN community_members ON community_members.user_id = users.id").
		Where("community_members.community_id = ?", communityID).
		Order("community_members.created_at ASC, users.id ASC").
		Find(&users).Error
	if err != nil {
		return nil, utils.Internal("list members", err)
	}
	friends, err := s.friends.ListFriends(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	friendIDs := make(map[uint]struct{}, len(friends))
	for _, f := range friends {
		friendIDs[f.ID] = struct{}{}
	}
	out := make([]models.MemberView, 0, len(users))
	for i := range users {
		_, isFriend := friendIDs[users[i].ID]
		out = append(out, models.MemberView{UserProfile: users[i].ToProfile(), IsFriend: isFriend})
	}
	return out, nil
}

func (s *CommunityService) ownedBy(ctx context.Context, communityID, actorID uint) (*models.Community, error) {
	c, err := s.find(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != actorID {
		return nil, utils.Unauthorized("only the community owner can do this")
	}
	return c, nil
}

func (s *CommunityService) Rename(ctx context.Context, communityID, actorID uint, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return utils.Validation("name cannot be empty")
	}
	c, err := s.ownedBy(ctx, communityID, actorID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(c).Update("name", name).Error; err != nil {
		return utils.Internal("rename community", err)
	}
	return nil
}

func (s *CommunityService) UpdateDescription(ctx context.Context, communityID, actorID uint, desc string) error {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return utils.Validation("description cannot be empty")
	}
	c, err := s.ownedBy(ctx, communityID, actorID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(c).Update("description", desc).Error; err != nil {
		return utils.Internal("update description", err)
	}
	return nil
}

// ChangeOwner hands the community to another member.
func (s *CommunityService) ChangeOwner(ctx context.Context, communityID, actorID uint, newOwnerEmail string) error {
	if NormalizeEmail(newOwnerEmail) == "" {
		return utils.Validation("new owner email is required")
	}
	c, err := s.ownedBy(ctx, communityID, actorID)
	if err != nil {
		return err
	}
	owner, err := s.users.GetByEmail(ctx, newOwnerEmail)
	if err != nil {
		return err
	}
	ok, err := s.IsMember(ctx, communityID, owner.ID)
	if err != nil {
		return err
	}
	if !ok {
		return utils.Validation("user is not a member of this community")
	}
	if err := s.db.WithContext(ctx).Model(c).Update("owner_id", owner.ID).Error; err != nil {
		return utils.Internal("change owner", err)
	}
	return nil
}

// SetPicture uploads the community picture. Owner only.
func (s *CommunityService) SetPicture(ctx context.Context, communityID, actorID uint, body io.Reader, size int64, contentType string) (*models.CommunityView, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	c, err := s.ownedBy(ctx, communityID, actorID)
	if err != nil {
		return nil, err
	}
	_, url, err := storeImage(ctx, s.store, "communities", c.ID, body, size, contentType)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(c).Update("community_picture_url", url).Error; err != nil {
		return nil, utils.Internal("save community picture", err)
	}
	return s.Get(ctx, communityID)
}

// SendCommunityMessage posts to the community chat. Members only.
func (s *CommunityService) SendCommunityMessage(ctx context.Context, communityID, senderID uint, text string) (*models.MessageView, error) {
	text, err := validateText(text, s.maxLen)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, communityID, senderID); err != nil {
		return nil, err
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	msg := models.CommunityMessage{CommunityID: communityID, SenderID: senderID, Text: text, Delivered: true}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, utils.Internal("save community message", err)
	}
	s.metrics.MessageSent("community")
	view := groupView(models.GroupMessage{ID: msg.ID, Text: msg.Text, CreatedAt: msg.CreatedAt}, sender)
	return &view, nil
}

// CommunityHistory returns the community chat oldest first. Members only.
func (s *CommunityService) CommunityHistory(ctx context.Context, communityID, viewerID uint) ([]models.MessageView, error) {
	if err := s.requireMember(ctx, communityID, viewerID); err != nil {
		return nil, err
	}
	var msgs []models.CommunityMessage
	err := s.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, utils.Internal("load community chat", err)
	}
	senders := map[uint]*models.User{}
	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		u, ok := senders[m.SenderID]
		if !ok {
			if u, err = s.users.GetByID(ctx, m.SenderID); err != nil {
				u = &models.User{}
			}
			senders[m.SenderID] = u
		}
		out = append(out, groupView(models.GroupMessage{ID: m.ID, Text: m.Text, CreatedAt: m.CreatedAt}, u))
	}
	return out, nil
}

func (s *CommunityService) requireMember(ctx context.Context, communityID, userID uint) error {
	if _, err := s.find(ctx, communityID); err != nil {
		return err
	}
	ok, err := s.IsMember(ctx, communityID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return utils.Unauthorized("you are not a member of this community")
	}
	return nil
}

func (s *CommunityService) views(ctx context.Context, list []models.Community) ([]models.CommunityView, error) {
	out := make([]models.CommunityView, 0, len(list))
	if len(list) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(list))
	ownerIDs := make([]uint, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
		ownerIDs = append(ownerIDs, c.OwnerID)
	}

	type catRow struct {
		CommunityID uint
		models.Category
	}
	var cats []catRow
	err := s.db.WithContext(ctx).Model(&models.CommunityCategory{}).
		Select("community_categories.community_id, categories.id, categories.topic, categories.subtopic").
		Joins("JOIN categories ON categories.id = community_categories.category_id").
		Where("community_categories.community_id IN ?", ids).
		Order("categories.id ASC").
		Scan(&cats).Error
	if err != nil {
		return nil, utils.Internal("load categories", err)
	}
	byCommunity := map[uint][]models.Category{}
	for _, r := range cats {
		byCommunity[r.CommunityID] = append(byCommunity[r.CommunityID], r.Category)
	}

	var owners []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ownerIDs).Find(&owners).Error; err != nil {
		return nil, utils.Internal("load owners", err)
	}
	ownerByID := map[uint]models.User{}
	for _, u := range owners {
		ownerByID[u.ID] = u
	}

	for _, c := range list {
		categories := byCommunity[c.ID]
		if categories == nil {
			categories = []models.Category{}
		}
		owner := ownerByID[c.OwnerID]
		out = append(out, models.CommunityView{
			ID:                  c.ID,
			Name:                c.Name,
			Description:         c.Description,
			Members:             c.Members,
			CommunityPictureURL: c.CommunityPictureURL,
			OwnerEmail:          owner.Email,
			OwnerUsername:       owner.Username,
			Categories:          categories,
		})
	}
	return out, nil
}
