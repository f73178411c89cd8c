// routes/routes.go
package routes

import (
	"time"

	"elaro/config"
	"elaro/controllers"
	"elaro/middleware"
	"elaro/repositories"
	"elaro/services"
	"elaro/utils"
	"elaro/websocket"
	"elaro/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

// App bundles the router and the background workers main starts and stops.
type App struct {
	Engine         *gin.Engine
	Hub            *websocket.Hub
	DeliveryWorker *workers.DeliveryWorker
	ReportWorker   *workers.ReportWorker
	CleanupWorker  *workers.CleanupWorker
}

// SetupRoutes wires repositories, services, workers, controllers, and routes.
func SetupRoutes(db *mongo.Database, redisClient *redis.Client, provider *utils.PushProvider, cfg *config.Config) *App {
	router := gin.New()

	repos := initializeRepositories(db)
	hub := websocket.NewHub()
	svcs := initializeServices(repos, redisClient, hub, provider, cfg)

	deliveryWorker := workers.NewDeliveryWorker(repos.Notification, svcs.Delivery, workers.DefaultDeliveryWorkerConfig())
	reportWorker := workers.NewReportWorker(svcs.Report, config.DefaultReportConfig())
	cleanupWorker := workers.NewCleanupWorker(repos.Notification, repos.Delivery, cfg.HistoryRetentionDays)

	ctrls := initializeControllers(repos, svcs, redisClient, hub, deliveryWorker)

	setupGlobalMiddleware(router, redisClient, cfg)

	authMiddleware := middleware.NewAuthMiddleware(svcs.JWT, repos.User)
	setupPublicRoutes(router, ctrls)
	setupAuthenticatedRoutes(router, ctrls, authMiddleware)
	setupAdminRoutes(router, ctrls, authMiddleware)
	setupWebSocketRoutes(router, hub, authMiddleware)

	return &App{
		Engine:         router,
		Hub:            hub,
		DeliveryWorker: deliveryWorker,
		ReportWorker:   reportWorker,
		CleanupWorker:  cleanupWorker,
	}
}

type Repositories struct {
	User         *repositories.UserRepository
	Preference   *repositories.PreferenceRepository
	Notification *repositories.NotificationRepository
	Delivery     *repositories.DeliveryRepository
	Report       *repositories.ReportRepository
}

func initializeRepositories(db *mongo.Database) *Repositories {
	return &Repositories{
		User:         repositories.NewUserRepository(db),
		Preference:   repositories.NewPreferenceRepository(db),
		Notification: repositories.NewNotificationRepository(db),
		Delivery:     repositories.NewDeliveryRepository(db),
		Report:       repositories.NewReportRepository(db),
	}
}

type Services struct {
	Preference *services.PreferenceService
	Scheduling *services.SchedulingService
	Delivery   *services.DeliveryService
	History    *services.HistoryService
	Report     *services.ReportService
	Push       *services.PushService
	JWT        *utils.JWTService
}

func initializeServices(
	repos *Repositories,
	redisClient *redis.Client,
	hub *websocket.Hub,
	provider *utils.PushProvider,
	cfg *config.Config,
) *Services {
	preferenceService := services.NewPreferenceService(repos.Preference)
	schedulingService := services.NewSchedulingService(repos.Notification, repos.Delivery, preferenceService, config.DefaultSchedulingConfig())
	deliveryService := services.NewDeliveryService(repos.Notification, repos.Delivery, repos.User, preferenceService, schedulingService, provider, hub)
	historyService := services.NewHistoryService(repos.Delivery, redisClient, config.DefaultHistoryConfig())
	reportService := services.NewReportService(repos.Report, repos.User, repos.Delivery, schedulingService, config.DefaultReportConfig())
	pushService := services.NewPushService(repos.User, repos.Delivery, provider)

	return &Services{
		Preference: preferenceService,
		Scheduling: schedulingService,
		Delivery:   deliveryService,
		History:    historyService,
		Report:     reportService,
		Push:       pushService,
		JWT:        utils.NewJWTService(cfg.JWTSecret),
	}
}

type Controllers struct {
	Notification *controllers.NotificationController
	Preference   *controllers.PreferenceController
	History      *controllers.HistoryController
	Report       *controllers.ReportController
	Device       *controllers.DeviceController
	Health       *controllers.HealthController
}

func initializeControllers(
	repos *Repositories,
	svcs *Services,
	redisClient *redis.Client,
	hub *websocket.Hub,
	deliveryWorker *workers.DeliveryWorker,
) *Controllers {
	return &Controllers{
		Notification: controllers.NewNotificationController(svcs.Scheduling, svcs.Delivery, svcs.Push),
		Preference:   controllers.NewPreferenceController(svcs.Preference),
		History:      controllers.NewHistoryController(svcs.History),
		Report:       controllers.NewReportController(svcs.Report),
		Device:       controllers.NewDeviceController(repos.User),
		Health:       controllers.NewHealthController(redisClient, hub, deliveryWorker),
	}
}

func setupGlobalMiddleware(router *gin.Engine, redisClient *redis.Client, cfg *config.Config) {
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(middleware.LoggerConfig{
		Logger:    logrus.StandardLogger(),
		SkipPaths: []string{"/health"},
	}))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig()))

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Redis:     redisClient,
		Requests:  cfg.RateLimitRequest,
		Window:    time.Duration(cfg.RateLimitWindow) * time.Minute,
		SkipPaths: []string{"/health", "/version"},
	})
	router.Use(rateLimiter.Middleware())
}

func setupPublicRoutes(router *gin.Engine, ctrls *Controllers) {
	router.GET("/health", ctrls.Health.Health)
	router.GET("/version", ctrls.Health.VersionInfo)
}

func setupAuthenticatedRoutes(router *gin.Engine, ctrls *Controllers, auth *middleware.AuthMiddleware) {
	v1 := router.Group("/api/v1")
	v1.Use(auth.RequireAuth())

	SetupNotificationRoutes(v1, ctrls.Notification)
	SetupPreferenceRoutes(v1, ctrls.Preference)
	SetupHistoryRoutes(v1, ctrls.History)

	v1.POST("/devices/register", ctrls.Device.Register)
}

func setupAdminRoutes(router *gin.Engine, ctrls *Controllers, auth *middleware.AuthMiddleware) {
	admin := router.Group("/api/v1")
	admin.Use(auth.RequireAuth(), auth.RequireAdmin())

	admin.POST("/notifications/send", ctrls.Notification.SendDirect)
	SetupReportRoutes(admin, ctrls.Report)
	admin.GET("/admin/stats", ctrls.Health.Stats)
}

func setupWebSocketRoutes(router *gin.Engine, hub *websocket.Hub, auth *middleware.AuthMiddleware) {
	ws := router.Group("/ws")
	ws.Use(auth.RequireAuth())
	ws.GET("", func(c *gin.Context) {
		websocket.ServeWS(hub, c)
	})
}
