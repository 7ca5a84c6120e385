package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"loop-backend/middlewares"
	"loop-backend/models"
	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

// mustUser returns the authenticated user or writes an error and returns nil.
func mustUser(c *gin.Context) *models.User {
	u, ok := middlewares.CurrentUser(c)
	if !ok {
		utils.RespondError(c, utils.Internal("user missing from context", nil))
		return nil
	}
	return u
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, utils.Validation("invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

const maxUploadBytes = 5 << 20

type uploadFunc func(ctx context.Context, body io.Reader, size int64, contentType string) error

// upload hands the multipart "file" field to fn. It writes the error response
// itself and reports whether fn succeeded.
func upload(c *gin.Context, fn uploadFunc) bool {
	fh, err := c.FormFile("file")
	if err != nil {
		utils.RespondError(c, utils.Validation("file is required"))
		return false
	}
	if fh.Size > maxUploadBytes {
		utils.RespondError(c, utils.Validation("file exceeds %d bytes", maxUploadBytes))
		return false
	}
	f, err := fh.Open()
	if err != nil {
		utils.RespondError(c, utils.Internal("open upload", err))
		return false
	}
	defer f.Close()

	err = fn(c.Request.Context(), f, fh.Size, fh.Header.Get("Content-Type"))
	if errors.Is(err, services.ErrStorageDisabled) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, utils.ErrorResponse{
			Error:     utils.ErrorBody{Kind: utils.KindInternal, Message: "uploads are disabled"},
			RequestID: c.GetString(utils.RequestIDKey),
		})
		return false
	}
	if err != nil {
		utils.RespondError(c, err)
		return false
	}
	return true
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		utils.RespondError(c, utils.BindError(err))
		return false
	}
	return true
}

func profiles(users []models.User) []models.UserProfile {
	out := make([]models.UserProfile, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToProfile())
	}
	return out
}
