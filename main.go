package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loop-backend/config"
	"loop-backend/controllers"
	"loop-backend/models"
	"loop-backend/routes"
	"loop-backend/services"
	"loop-backend/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "loop-backend",
		Short:         "Loop community backend: REST API and realtime relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed categories",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			slog.Info("migrations applied")
			return closeDB(db)
		},
	}
}

// setup loads config and installs the default JSON logger.
func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}

// 初始化数据库并自动迁移
func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := models.SeedCategories(db); err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		slog.Info("redis not configured, realtime delivery is local to this instance")
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func openStore(cfg *config.Config) (services.ObjectStore, error) {
	if !cfg.StorageEnabled() {
		slog.Info("object storage not configured, avatar uploads disabled")
		return nil, nil
	}
	store, err := services.NewMinioStore(services.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	return store, nil
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(cfg.TraceStdout)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(db)

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	users := services.NewUserService(db, store)
	tokens := services.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	friends := services.NewFriendService(db, users)
	communities := services.NewCommunityService(db, users, friends, store, metrics, cfg.MaxMessageLen)
	posts := services.NewPostService(db, users, communities)
	reads := services.NewReadTracker(db, metrics)
	messages := services.NewMessageService(db, users, reads, metrics, cfg.MaxMessageLen)
	groups := services.NewGroupService(db, users, metrics, cfg.MaxMessageLen)
	events := services.NewEventService(db, users, cfg.StaffDomain)

	hub := services.NewHub(rdb, metrics)
	relay := services.NewRelay(hub, messages, groups, communities, reads, metrics)

	gin.SetMode(gin.ReleaseMode)
	router := routes.RegisterRoutes(routes.Deps{
		Logger:         slog.Default(),
		Metrics:        metrics,
		Gatherer:       reg,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthRateLimit:  cfg.AuthRateLimit,
		Tokens:         tokens,
		Users:          users,

		UserController:         controllers.NewUserController(users, tokens),
		FriendController:       controllers.NewFriendController(friends),
		CommunityController:    controllers.NewCommunityController(communities, relay),
		PostController:         controllers.NewPostController(posts),
		ConversationController: controllers.NewConversationsController(messages, groups),
		MessageController:      controllers.NewMessageController(messages, reads, relay),
		GroupController:        controllers.NewGroupController(groups, relay),
		EventController:        controllers.NewEventController(events),
		WSController:           controllers.NewWSController(ctx, services.NewUpgrader(cfg.AllowedOrigins), hub, relay),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr, "db_driver", cfg.DBDriver, "redis", rdb != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
