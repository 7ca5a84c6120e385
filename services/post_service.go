package services

import (
	"context"
	"errors"
	"strings"

	"loop-backend/models"
	"loop-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostService stores community posts, likes and comments. Posting is gated on
// community membership.
type PostService struct {
	db          *gorm.DB
	users       *UserService
	communities *CommunityService
}

func NewPostService(db *gorm.DB, users *UserService, communities *CommunityService) *PostService {
	return &PostService{db: db, users: users, communities: communities}
}

type CreatePostInput struct {
	CommunityID uint
	Topic       string
	Content     string
}

func (s *PostService) CreatePost(ctx context.Context, authorID uint, in CreatePostInput) (*models.PostView, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, utils.Validation("post content is required")
	}
	if _, err := s.communities.find(ctx, in.CommunityID); err != nil {
		return nil, err
	}
	ok, err := s.communities.IsMember(ctx, in.CommunityID, authorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.Unauthorized("you must join this community first")
	}

	post := models.Post{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		CommunityID: in.CommunityID,
		Topic:       strings.TrimSpace(in.Topic),
		Content:     content,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, utils.Internal("create post", err)
	}
	views, err := s.views(ctx, authorID, []models.Post{post})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Feed lists posts newest first, optionally for one community.
func (s *PostService) Feed(ctx context.Context, viewerID uint, communityID uint) ([]models.PostView, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id ASC")
	if communityID != 0 {
		q = q.Where("community_id = ?", communityID)
	}
	var posts []models.Post
	if err := q.Find(&posts).Error; err != nil {
		return nil, utils.Internal("load feed", err)
	}
	return s.views(ctx, viewerID, posts)
}

func (s *PostService) findPost(ctx context.Context, postID string) (*models.Post, error) {
	if _, err := uuid.Parse(postID); err != nil {
		return nil, utils.Validation("invalid post id")
	}
	var p models.Post
	err := s.db.WithContext(ctx).Where("id = ?", postID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("post not found")
	}
	if err != nil {
		return nil, utils.Internal("find post", err)
	}
	return &p, nil
}

// ToggleLike flips userID's like on the post and returns the new count and
// whether the post is now liked.
func (s *PostService) ToggleLike(ctx context.Context, postID string, userID uint) (int64, bool, error) {
	if _, err := s.findPost(ctx, postID); err != nil {
		return 0, false, err
	}
	var (
		count int64
		liked bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&models.Like{PostID: postID, UserID: userID}).Error; err != nil {
				return err
			}
			liked = true
		}
		return tx.Model(&models.Like{}).Where("post_id = ?", postID).Count(&count).Error
	})
	if err != nil {
		return 0, false, utils.Internal("toggle like", err)
	}
	return count, liked, nil
}

func (s *PostService) Comment(ctx context.Context, postID string, userID uint, text string) (*models.CommentView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.Validation("comment content is required")
	}
	if _, err := s.findPost(ctx, postID); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	c := models.Comment{PostID: postID, UserID: userID, Content: text}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, utils.Internal("create comment", err)
	}
	return &models.CommentView{Username: user.DisplayName(), PostID: postID, Content: c.Content, CreatedAt: c.CreatedAt}, nil
}

type likeCount struct {
	PostID string
	N      int64
}

func (s *PostService) views(ctx context.Context, viewerID uint, posts []models.Post) ([]models.PostView, error) {
	out := make([]models.PostView, 0, len(posts))
	if len(posts) == 0 {
		return out, nil
	}
	db := s.db.WithContext(ctx)
	postIDs := make([]string, 0, len(posts))
	userIDs := make([]uint, 0, len(posts))
	communityIDs := make([]uint, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		userIDs = append(userIDs, p.AuthorID)
		communityIDs = append(communityIDs, p.CommunityID)
	}

	var counts []likeCount
	if err := db.Model(&models.Like{}).Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", postIDs).Group("post_id").Scan(&counts).Error; err != nil {
		return nil, utils.Internal("count likes", err)
	}
	likes := map[string]int64{}
	for _, c := range counts {
		likes[c.PostID] = c.N
	}

	var mine []string
	if err := db.Model(&models.Like{}).Where("post_id IN ? AND user_id = ?", postIDs, viewerID).
		Pluck("post_id", &mine).Error; err != nil {
		return nil, utils.Internal("load likes", err)
	}
	liked := map[string]bool{}
	for _, id := range mine {
		liked[id] = true
	}

	var comments []models.Comment
	if err := db.Where("post_id IN ?", postIDs).Order("created_at ASC, id ASC").Find(&comments).Error; err != nil {
		return nil, utils.Internal("load comments", err)
	}
	for _, c := range comments {
		userIDs = append(userIDs, c.UserID)
	}

	users := map[uint]models.User{}
	var userRows []models.User
	if err := db.Where("id IN ?", userIDs).Find(&userRows).Error; err != nil {
		return nil, utils.Internal("load authors", err)
	}
	for _, u := range userRows {
		users[u.ID] = u
	}

	communities := map[uint]string{}
	var commRows []models.Community
	if err := db.Select("id, name").Where("id IN ?", communityIDs).Find(&commRows).Error; err != nil {
		return nil, utils.Internal("load communities", err)
	}
	for _, c := range commRows {
		communities[c.ID] = c.Name
	}

	byPost := map[string][]models.CommentView{}
	for _, c := range comments {
		u := users[c.UserID]
		byPost[c.PostID] = append(byPost[c.PostID], models.CommentView{
			Username: u.DisplayName(), PostID: c.PostID, Content: c.Content, CreatedAt: c.CreatedAt,
		})
	}

	for _, p := range posts {
		author := users[p.AuthorID]
		cs := byPost[p.ID]
		if cs == nil {
			cs = []models.CommentView{}
		}
		out = append(out, models.PostView{
			ID:            p.ID,
			AuthorName:    author.DisplayName(),
			AuthorPhoto:   author.ProfilePictureURL,
			CommunityID:   p.CommunityID,
			CommunityName: communities[p.CommunityID],
			Topic:         p.Topic,
			Content:       p.Content,
			CreatedAt:     p.CreatedAt,
			Likes:         likes[p.ID],
			LikedByUser:   liked[p.ID],
			Comments:      cs,
		})
	}
	return out, nil
}
