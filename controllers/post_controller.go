package controllers

import (
	"strconv"

	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

type PostController struct {
	posts *services.PostService
}

func NewPostController(posts *services.PostService) *PostController {
	return &PostController{posts: posts}
}

type createPostBody struct {
	CommunityID uint   `json:"community_id" binding:"required"`
	Topic       string `json:"topic"`
	Content     string `json:"content" binding:"required"`
}

// Feed lists posts, optionally filtered by ?community_id=.
func (ctl *PostController) Feed(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var communityID uint
	if raw := c.Query("community_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			utils.RespondError(c, utils.Validation("invalid community_id"))
			return
		}
		communityID = uint(id)
	}
	feed, err := ctl.posts.Feed(c.Request.Context(), u.ID, communityID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, feed, nil)
}

func (ctl *PostController) Create(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in createPostBody
	if !bind(c, &in) {
		return
	}
	post, err := ctl.posts.CreatePost(c.Request.Context(), u.ID, services.CreatePostInput{
		CommunityID: in.CommunityID, Topic: in.Topic, Content: in.Content,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, post)
}

func (ctl *PostController) Like(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	count, liked, err := ctl.posts.ToggleLike(c.Request.Context(), c.Param("id"), u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"likes": count, "liked_by_user": liked}, nil)
}

func (ctl *PostController) Comment(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in struct {
		Comment string `json:"comment" binding:"required"`
	}
	if !bind(c, &in) {
		return
	}
	comment, err := ctl.posts.Comment(c.Request.Context(), c.Param("id"), u.ID, in.Comment)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, comment)
}
