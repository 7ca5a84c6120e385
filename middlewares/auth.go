package middlewares

import (
	"net/http"
	"strings"

	"loop-backend/models"
	"loop-backend/services"
	"loop-backend/utils"

	"github.com/gin-gonic/gin"
)

// UserKey is the gin context key holding the authenticated *models.User.
const UserKey = "user"

// TokenAuthMiddleware 校验 JWT 并把当前用户放入上下文
//
// The token comes from the Authorization bearer header or, for websocket
// upgrades, the token query parameter.
func TokenAuthMiddleware(tokens *services.TokenService, users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			abortUnauthenticated(c, "missing access token")
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			abortUnauthenticated(c, "invalid or expired token")
			return
		}
		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if utils.KindOf(err) == utils.KindNotFound {
				abortUnauthenticated(c, "user no longer exists")
				return
			}
			utils.RespondError(c, err)
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{
		Error:     utils.ErrorBody{Kind: utils.KindUnauthorized, Message: msg},
		RequestID: c.GetString(utils.RequestIDKey),
	})
}

// CurrentUser returns the user set by TokenAuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}
