package services

import (
	"context"
	"errors"
	"time"

	"loop-backend/models"
	"loop-backend/utils"

	"gorm.io/gorm"
)

const defaultSuggestionLimit = 10

type FriendService struct {
	db    *gorm.DB
	users *UserService
}

func NewFriendService(db *gorm.DB, users *UserService) *FriendService {
	return &FriendService{db: db, users: users}
}

// FriendRequestView describes a request from the addressee's point of view.
type FriendRequestView struct {
	RequestID         uint                `json:"request_id"`
	Requester         string              `json:"requester"`
	RequesterID       uint                `json:"requester_id"`
	RequesterName     string              `json:"req_name"`
	Recipient         string              `json:"recipient"`
	Status            models.FriendStatus `json:"status"`
	CreatedAt         time.Time           `json:"created_at"`
	ProfilePictureURL string              `json:"profile_picture_url,omitempty"`
}

func (s *FriendService) pairQuery(ctx context.Context, a, b uint) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)", a, b, b, a)
}

// SendRequest creates a pending request from requesterID to the user with
// addresseeEmail. A rejected request may be re-sent.
func (s *FriendService) SendRequest(ctx context.Context, requesterID uint, addresseeEmail string) (*models.Friendship, error) {
	if NormalizeEmail(addresseeEmail) == "" {
		return nil, utils.Validation("recipient email is required")
	}
	addressee, err := s.users.GetByEmail(ctx, addresseeEmail)
	if err != nil {
		return nil, err
	}
	if addressee.ID == requesterID {
		return nil, utils.Validation("cannot send a friend request to yourself")
	}

	var existing models.Friendship
	err = s.pairQuery(ctx, requesterID, addressee.ID).First(&existing).Error
	switch {
	case err == nil:
		switch existing.Status {
		case models.FriendAccepted:
			return nil, utils.Conflict("you are already friends with this user")
		case models.FriendPending:
			if existing.RequesterID == requesterID {
				return nil, utils.Conflict("you have already sent a pending request to this user")
			}
			return nil, utils.Conflict("this user has already sent you a pending friend request")
		}
		existing.RequesterID, existing.AddresseeID = requesterID, addressee.ID
		existing.Status = models.FriendPending
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, utils.Internal("resend friend request", err)
		}
		return &existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, utils.Internal("find friendship", err)
	}

	req := &models.Friendship{RequesterID: requesterID, AddresseeID: addressee.ID, Status: models.FriendPending}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, utils.Conflict("could not send friend request")
	}
	return req, nil
}

// Respond accepts or rejects a pending request addressed to actorID.
func (s *FriendService) Respond(ctx context.Context, requestID, actorID uint, accept bool) (*FriendRequestView, error) {
	var req models.Friendship
	err := s.db.WithContext(ctx).First(&req, requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("friend request not found")
	}
	if err != nil {
		return nil, utils.Internal("find friend request", err)
	}
	if req.AddresseeID != actorID {
		return nil, utils.Unauthorized("you are not authorized to respond to this friend request")
	}
	if req.Status != models.FriendPending {
		return nil, utils.Conflict("this friend request has already been handled")
	}
	req.Status = models.FriendRejected
	if accept {
		req.Status = models.FriendAccepted
	}
	if err := s.db.WithContext(ctx).Model(&req).Update("status", req.Status).Error; err != nil {
		return nil, utils.Internal("update friend request", err)
	}
	views, err := s.requestViews(ctx, []models.Friendship{req})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListFriends returns the users with an accepted friendship with userID.
func (s *FriendService) ListFriends(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN friendships ON (friendships.requester_id = ? AND friendships.addressee_id = users.id) OR (friendships.addressee_id = ? AND friendships.requester_id = users.id)", userID, userID).
		Where("friendships.status = ? AND users.id <> ?", models.FriendAccepted, userID).
		Distinct().
		Order("users.email ASC").
		Find(&users).Error
	if err != nil {
		return nil, utils.Internal("list friends", err)
	}
	return users, nil
}

// Pending lists requests waiting for userID to respond.
func (s *FriendService) Pending(ctx context.Context, userID uint) ([]FriendRequestView, error) {
	var reqs []models.Friendship
	err := s.db.WithContext(ctx).
		Where("addressee_id = ? AND status = ?", userID, models.FriendPending).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, utils.Internal("list pending requests", err)
	}
	return s.requestViews(ctx, reqs)
}

// Suggestions lists users with no friendship row of any status with userID.
func (s *FriendService) Suggestions(ctx context.Context, userID uint, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}
	connected := s.db.Model(&models.Friendship{}).Select("addressee_id").Where("requester_id = ?", userID)
	connectedBack := s.db.Model(&models.Friendship{}).Select("requester_id").Where("addressee_id = ?", userID)

	var users []models.User
	err := s.db.WithContext(ctx).
		Where("id <> ?", userID).
		Where("id NOT IN (?)", connected).
		Where("id NOT IN (?)", connectedBack).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, utils.Internal("suggest users", err)
	}
	return users, nil
}

// AreFriends reports whether a and b have an accepted friendship.
func (s *FriendService) AreFriends(ctx context.Context, a, b uint) (bool, error) {
	var n int64
	err := s.pairQuery(ctx, a, b).Model(&models.Friendship{}).
		Where("status = ?", models.FriendAccepted).
		Count(&n).Error
	if err != nil {
		return false, utils.Internal("check friendship", err)
	}
	return n > 0, nil
}

func (s *FriendService) requestViews(ctx context.Context, reqs []models.Friendship) ([]FriendRequestView, error) {
	ids := make([]uint, 0, len(reqs)*2)
	for _, r := range reqs {
		ids = append(ids, r.RequesterID, r.AddresseeID)
	}
	users := map[uint]models.User{}
	if len(ids) > 0 {
		var list []models.User
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
			return nil, utils.Internal("load request users", err)
		}
		for _, u := range list {
			users[u.ID] = u
		}
	}
	out := make([]FriendRequestView, 0, len(reqs))
	for _, r := range reqs {
		requester, recipient := users[r.RequesterID], users[r.AddresseeID]
		out = append(out, FriendRequestView{
			RequestID:         r.ID,
			Requester:         requester.Email,
			RequesterID:       requester.ID,
			RequesterName:     requester.ToProfile().FullName,
			Recipient:         recipient.Email,
			Status:            r.Status,
			CreatedAt:         r.CreatedAt,
			ProfilePictureURL: requester.ProfilePictureURL,
		})
	}
	return out, nil
}
