package controllers

import (
	"context"
	"io"

	"loop-backend/models"
	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	users  *services.UserService
	tokens *services.TokenService
}

func NewUserController(users *services.UserService, tokens *services.TokenService) *UserController {
	return &UserController{users: users, tokens: tokens}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstname" binding:"required"`
	LastName  string `json:"lastname" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 用户注册
func (ctl *UserController) Register(c *gin.Context) {
	var in registerRequest
	if !bind(c, &in) {
		return
	}
	user, err := ctl.users.Register(c.Request.Context(), services.RegisterInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	// 生成 JWT Token
	token, err := ctl.tokens.Issue(user)
	if err != nil {
		utils.RespondError(c, utils.Internal("issue token", err))
		return
	}
	utils.RespondCreated(c, gin.H{"token": token, "user": user.ToProfile()})
}

// Login 用户登录
func (ctl *UserController) Login(c *gin.Context) {
	var in loginRequest
	if !bind(c, &in) {
		return
	}
	user, err := ctl.users.Authenticate(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	token, err := ctl.tokens.Issue(user)
	if err != nil {
		utils.RespondError(c, utils.Internal("issue token", err))
		return
	}
	utils.RespondSuccess(c, gin.H{"token": token, "user": user.ToProfile()}, nil)
}

func (ctl *UserController) Me(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	utils.RespondSuccess(c, u.ToProfile(), nil)
}

func (ctl *UserController) GetByEmail(c *gin.Context) {
	if mustUser(c) == nil {
		return
	}
	user, err := ctl.users.GetByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, user.ToProfile(), nil)
}

func (ctl *UserController) Search(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	found, err := ctl.users.Search(c.Request.Context(), u.ID, c.Query("q"), 20)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	out := profiles(found)
	utils.RespondSuccess(c, out, gin.H{"count": len(out)})
}

func (ctl *UserController) UpdateMe(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var in services.ProfileUpdate
	if !bind(c, &in) {
		return
	}
	updated, err := ctl.users.UpdateProfile(c.Request.Context(), u.ID, in)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, updated.ToProfile(), nil)
}

// UploadAvatar accepts a multipart "file" field.
func (ctl *UserController) UploadAvatar(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var updated *models.User
	ok := upload(c, func(ctx context.Context, body io.Reader, size int64, contentType string) (err error) {
		updated, err = ctl.users.UploadAvatar(ctx, u.ID, body, size, contentType)
		return err
	})
	if !ok {
		return
	}
	utils.RespondSuccess(c, updated.ToProfile(), nil)
}

// UploadPhoto adds a picture to the current user's gallery.
func (ctl *UserController) UploadPhoto(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	var photo *models.UserPhoto
	ok := upload(c, func(ctx context.Context, body io.Reader, size int64, contentType string) (err error) {
		photo, err = ctl.users.UploadPhoto(ctx, u.ID, body, size, contentType)
		return err
	})
	if !ok {
		return
	}
	utils.RespondCreated(c, photo)
}

func (ctl *UserController) MyPhotos(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	ctl.photos(c, u.ID)
}

func (ctl *UserController) PhotosOf(c *gin.Context) {
	if mustUser(c) == nil {
		return
	}
	owner, err := ctl.users.GetByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	ctl.photos(c, owner.ID)
}

func (ctl *UserController) photos(c *gin.Context, userID uint) {
	list, err := ctl.users.Photos(c.Request.Context(), userID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, gin.H{"count": len(list)})
}

// DeletePhoto removes a gallery picture by the last segment of its key.
func (ctl *UserController) DeletePhoto(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	if err := ctl.users.DeletePhoto(c.Request.Context(), u.ID, c.Param("key")); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"msg": "photo deleted"}, nil)
}

// DeleteMe 注销账号
func (ctl *UserController) DeleteMe(c *gin.Context) {
	u := mustUser(c)
	if u == nil {
		return
	}
	if err := ctl.users.Delete(c.Request.Context(), u.ID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"msg": "account deleted"}, nil)
}
