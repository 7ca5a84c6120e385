package controllers

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"loop-backend/models"
	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

type CommunityController struct {
	communities *services.CommunityService
	relay       *services.Relay
}

func NewCommunityController(communities *services.CommunityService, relay *services.Relay) *CommunityController {
	return &CommunityController{communities: communities, relay: relay}
}

type createCommunityBody struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"required"`
	Categories  []uint `json:"categories" binding:"required,min=1"`
}

func (ctl *CommunityController) Categories(c *gin.Context) {
	cats, err := ctl.communities.Categories(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, cats, nil)
}

func (ctl *CommunityController) Create(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in createCommunityBody
	if !bind(c, &in) {
		return
	}
	view, err := ctl.communities.Create(c.Request.Context(), u.ID, services.CreateCommunityInput{
		Name: in.Name, Description: in.Description, CategoryIDs: in.Categories,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, view)
}

// Search takes ?query= and a comma separated ?categories= list.
func (ctl *CommunityController) Search(c *gin.Context) {
	var ids []uint
	if raw := strings.TrimSpace(c.Query("categories")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
			if err != nil {
				utils.RespondError(c, utils.Validation("invalid categories input"))
				return
			}
			ids = append(ids, uint(id))
		}
	}
	list, err := ctl.communities.Search(c.Request.Context(), c.Query("query"), ids)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, nil)
}

func (ctl *CommunityController) Joined(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	list, err := ctl.communities.Joined(c.Request.Context(), u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, nil)
}

func (ctl *CommunityController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	view, err := ctl.communities.Get(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, view, nil)
}

// membership runs fn for the current user and community :id and answers with
// a short status message.
func (ctl *CommunityController) membership(c *gin.Context, msg string, fn func(c *gin.Context, communityID, userID uint) error) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := fn(c, id, u.ID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"msg": msg}, nil)
}

func (ctl *CommunityController) Join(c *gin.Context) {
	ctl.membership(c, "community joined", func(c *gin.Context, id, userID uint) error {
		return ctl.communities.Join(c.Request.Context(), id, userID)
	})
}

func (ctl *CommunityController) Leave(c *gin.Context) {
	ctl.membership(c, "left the community", func(c *gin.Context, id, userID uint) error {
		return ctl.communities.Leave(c.Request.Context(), id, userID)
	})
}

func (ctl *CommunityController) Members(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	members, err := ctl.communities.Members(c.Request.Context(), id, u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, members, nil)
}

func (ctl *CommunityController) Rename(c *gin.Context) {
	var in struct {
		Name string `json:"name"`
	}
	if !bind(c, &in) {
		return
	}
	ctl.membership(c, "community name updated", func(c *gin.Context, id, userID uint) error {
		return ctl.communities.Rename(c.Request.Context(), id, userID, in.Name)
	})
}

func (ctl *CommunityController) UpdateDescription(c *gin.Context) {
	var in struct {
		Description string `json:"description"`
	}
	if !bind(c, &in) {
		return
	}
	ctl.membership(c, "community description updated", func(c *gin.Context, id, userID uint) error {
		return ctl.communities.UpdateDescription(c.Request.Context(), id, userID, in.Description)
	})
}

func (ctl *CommunityController) ChangeOwner(c *gin.Context) {
	var in struct {
		NewOwnerEmail string `json:"new_owner_email" binding:"required"`
	}
	if !bind(c, &in) {
		return
	}
	ctl.membership(c, "owner changed", func(c *gin.Context, id, userID uint) error {
		return ctl.communities.ChangeOwner(c.Request.Context(), id, userID, in.NewOwnerEmail)
	})
}

func (ctl *CommunityController) History(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	msgs, err := ctl.communities.CommunityHistory(c.Request.Context(), id, u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, msgs, nil)
}

func (ctl *CommunityController) PostMessage(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		Text string `json:"text" binding:"required"`
	}
	if !bind(c, &in) {
		return
	}
	msg, err := ctl.communities.SendCommunityMessage(c.Request.Context(), id, u.ID, in.Text)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if ctl.relay != nil {
		if err := ctl.relay.PublishCommunity(c.Request.Context(), id, msg); err != nil {
			slog.Warn("publish community message", "community_id", id, "error", err)
		}
	}
	utils.RespondCreated(c, msg)
}

// UploadPicture 更新社区头像，仅限创建者
func (ctl *CommunityController) UploadPicture(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var view *models.CommunityView
	ok = upload(c, func(ctx context.Context, body io.Reader, size int64, contentType string) (err error) {
		view, err = ctl.communities.SetPicture(ctx, id, u.ID, body, size, contentType)
		return err
	})
	if !ok {
		return
	}
	utils.RespondSuccess(c, view, nil)
}
