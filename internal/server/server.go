package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"anoa.com/marketchat/internal/config"
	"anoa.com/marketchat/internal/metrics"
	"anoa.com/marketchat/internal/middleware"
	"anoa.com/marketchat/internal/realtime"

	chatHttp "anoa.com/marketchat/internal/modules/chat/delivery/http"
	chatRepo "anoa.com/marketchat/internal/modules/chat/repository"
	chatService "anoa.com/marketchat/internal/modules/chat/service"

	listingRepo "anoa.com/marketchat/internal/modules/listing/repository"

	notiHttp "anoa.com/marketchat/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/marketchat/internal/modules/notification/repository"
	notifService "anoa.com/marketchat/internal/modules/notification/service"

	prefHttp "anoa.com/marketchat/internal/modules/preference/delivery/http"
	prefRepo "anoa.com/marketchat/internal/modules/preference/repository"
	prefService "anoa.com/marketchat/internal/modules/preference/service"

	"anoa.com/marketchat/pkg/queue"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the infrastructure handles built by main. RedisClient, Producer
// and Search may be nil.
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	RedisClient *redis.Client
	Broker      realtime.Broker
	Producer    queue.Producer
	Search      chatService.MessageSearch
	Logger      *zap.Logger
}

type Server struct {
	engine        *gin.Engine
	db            *gorm.DB
	redisClient   *redis.Client
	http          *http.Server
	Chat          chatService.Service
	Notifications notifService.NotificationService
}

func NewServer(deps Deps) *Server {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	listings := listingRepo.NewRepository(deps.DB)

	// Preference Module
	preferenceSvc := prefService.NewService(prefRepo.NewRepository(deps.DB))
	preferenceHandler := prefHttp.NewPreferenceHandler(preferenceSvc)

	// Notification Module
	notificationRepository := notifRepo.NewNotificationRepository(deps.DB)
	notificationSvc := notifService.NewNotificationService(notificationRepository, preferenceSvc, deps.Broker, deps.Producer, logger.Named("notification"))
	upgrader := realtime.NewUpgrader(cfg.AllowedOrigins)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, deps.Broker, upgrader, cfg.WSPingInterval, logger.Named("ws"))
	internalHandler := notiHttp.NewInternalHandler(notificationSvc, listings)

	// Chat Module
	chatSvc := chatService.NewService(
		chatRepo.NewRepository(deps.DB),
		listings,
		notificationSvc,
		deps.Broker,
		deps.RedisClient,
		deps.Search,
		chatService.Options{
			ThreadRateLimit:   cfg.RateLimitThread,
			IdempotencyWindow: cfg.IdempotencyWindow,
		},
		logger.Named("chat"),
	)
	chatHandler := chatHttp.NewChatHandler(chatSvc, deps.Broker, upgrader, cfg.WSPingInterval, logger.Named("ws"))

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/metrics"},
		Skip: func(c *gin.Context) bool {
			return strings.HasPrefix(c.Request.URL.Path, "/api/ws/")
		},
	}))

	s := &Server{
		engine:        router,
		db:            deps.DB,
		redisClient:   deps.RedisClient,
		Chat:          chatSvc,
		Notifications: notificationSvc,
	}

	router.GET("/health", s.health)
	router.GET("/metrics", metrics.Handler())

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.InternalAPIKey)

	api := router.Group("/api")

	// Service-to-service routes
	internal := api.Group("/internal")
	internal.Use(authMiddleware.RequireInternalKey())
	{
		internal.POST("/notifications", internalHandler.CreateNotification)
		internal.POST("/listing-events", internalHandler.ListingEvent)
	}

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Chat routes
		protected.POST("/chat/threads", chatHandler.CreateThread)
		protected.GET("/chat/threads", chatHandler.ListThreads)
		protected.GET("/chat/threads/:thread_id", chatHandler.GetThread)
		protected.POST("/chat/threads/:thread_id/messages", chatHandler.SendMessage)
		protected.GET("/chat/threads/:thread_id/messages", chatHandler.ListMessages)
		protected.POST("/chat/threads/:thread_id/read", chatHandler.MarkThreadRead)
		protected.GET("/chat/unread-count", chatHandler.UnreadCount)
		protected.GET("/chat/search-token", chatHandler.SearchToken)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.DELETE("/notifications/:id", notificationHandler.DeleteNotification)

		// Preference routes
		protected.GET("/notification-preferences", preferenceHandler.GetPreferences)
		protected.PATCH("/notification-preferences", preferenceHandler.UpdatePreferences)

		// Realtime
		protected.GET("/ws/notifications", notificationHandler.HandleWebSocket)
		protected.GET("/ws/threads/:thread_id", chatHandler.HandleWebSocket)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok"}
	code := http.StatusOK

	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			status["redis"] = "unavailable"
			code = http.StatusServiceUnavailable
		} else {
			status["redis"] = "ok"
		}
	}

	c.JSON(code, status)
}

func setupCORS(router *gin.Engine, origins []string) {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.InternalKeyHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
		}
	}

	router.Use(cors.New(cfg))
}
