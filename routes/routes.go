package routes

import (
	"log/slog"
	"net/http"
	"slices"

	"loop-backend/controllers"
	"loop-backend/middlewares"
	"loop-backend/services"
	"loop-backend/telemetry"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps 路由所需的全部依赖
type Deps struct {
	Logger         *slog.Logger
	Metrics        *telemetry.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	AuthRateLimit  int

	Tokens *services.TokenService
	Users  *services.UserService

	UserController         *controllers.UserController
	FriendController       *controllers.FriendController
	CommunityController    *controllers.CommunityController
	PostController         *controllers.PostController
	ConversationController *controllers.ConversationsController
	MessageController      *controllers.MessageController
	GroupController        *controllers.GroupController
	EventController        *controllers.EventController
	WSController           *controllers.WSController
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestID(), middlewares.AccessLog(logger))
	r.Use(otelgin.Middleware("loop-backend"))
	r.Use(d.Metrics.GinMiddleware())

	// 配置跨域中间件
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middlewares.RequestIDHeader},
		ExposeHeaders: []string{middlewares.RequestIDHeader},
	}
	if len(d.AllowedOrigins) == 0 || slices.Contains(d.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = d.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := middlewares.TokenAuthMiddleware(d.Tokens, d.Users)
	r.GET("/ws", auth, d.WSController.Serve)

	api := r.Group("/api")

	limiter := middlewares.NewIPRateLimiter(d.AuthRateLimit)
	public := api.Group("/auth", limiter.Middleware())
	public.POST("/register", d.UserController.Register)
	public.POST("/login", d.UserController.Login)

	protected := api.Group("", auth)
	{
		protected.GET("/auth/me", d.UserController.Me)

		users := protected.Group("/users")
		users.GET("/search", d.UserController.Search)
		users.PUT("/me", d.UserController.UpdateMe)
		users.DELETE("/me", d.UserController.DeleteMe)
		users.POST("/me/avatar", d.UserController.UploadAvatar)
		users.GET("/me/photos", d.UserController.MyPhotos)
		users.POST("/me/photos", d.UserController.UploadPhoto)
		users.DELETE("/me/photos/:key", d.UserController.DeletePhoto)
		users.GET("/:email", d.UserController.GetByEmail)
		users.GET("/:email/photos", d.UserController.PhotosOf)

		friends := protected.Group("/friends")
		friends.POST("/request", d.FriendController.SendRequest)
		friends.PUT("/request/:id/respond", d.FriendController.Respond)
		friends.GET("/list", d.FriendController.List)
		friends.GET("/requests/pending", d.FriendController.Pending)
		friends.GET("/suggestions", d.FriendController.Suggestions)

		communities := protected.Group("/communities")
		communities.GET("/categories", d.CommunityController.Categories)
		communities.POST("", d.CommunityController.Create)
		communities.GET("/search", d.CommunityController.Search)
		communities.GET("/joined", d.CommunityController.Joined)
		communities.GET("/:id", d.CommunityController.Get)
		communities.POST("/:id/join", d.CommunityController.Join)
		communities.POST("/:id/leave", d.CommunityController.Leave)
		communities.GET("/:id/members", d.CommunityController.Members)
		communities.PATCH("/:id/name", d.CommunityController.Rename)
		communities.PATCH("/:id/description", d.CommunityController.UpdateDescription)
		communities.PATCH("/:id/owner", d.CommunityController.ChangeOwner)
		communities.POST("/:id/picture", d.CommunityController.UploadPicture)
		communities.GET("/:id/messages", d.CommunityController.History)
		communities.POST("/:id/messages", d.CommunityController.PostMessage)

		protected.GET("/announcements", d.EventController.Announcements)
		protected.POST("/announcements", d.EventController.CreateAnnouncement)

		events := protected.Group("/events")
		events.GET("", d.EventController.Upcoming)
		events.POST("", d.EventController.Create)
		events.GET("/rsvped", d.EventController.RSVPed)
		events.POST("/:id/rsvp", d.EventController.RSVP)

		posts := protected.Group("/posts")
		posts.GET("", d.PostController.Feed)
		posts.POST("", d.PostController.Create)
		posts.POST("/:id/like", d.PostController.Like)
		posts.POST("/:id/comment", d.PostController.Comment)

		messages := protected.Group("/messages")
		messages.GET("/conversations", d.ConversationController.GetConversations)
		messages.GET("/history/:email", d.ConversationController.GetDirectHistory)
		messages.GET("/group-history/:id", d.ConversationController.GetGroupHistory)
		messages.POST("", d.MessageController.SendMessage)
		messages.POST("/:id/read", d.MessageController.MarkRead)

		groups := protected.Group("/groups")
		groups.POST("", d.GroupController.Create)
		groups.GET("/:id/members", d.GroupController.Members)
		groups.PATCH("/:id/name", d.GroupController.Rename)
		groups.POST("/:id/members", d.GroupController.AddMembers)
		groups.POST("/:id/leave", d.GroupController.Leave)
		groups.POST("/:id/messages", d.GroupController.SendMessage)
	}

	return r
}
