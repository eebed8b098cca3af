package app

import (
	"context"
	"edu_gap_analytics/internal/config"
	"edu_gap_analytics/internal/controller"
	"edu_gap_analytics/internal/repository"
	"edu_gap_analytics/internal/service"
	"edu_gap_analytics/pkg/configwatcher"
	"edu_gap_analytics/pkg/database"
	"edu_gap_analytics/pkg/logger"
	"edu_gap_analytics/pkg/monitoring"
	"edu_gap_analytics/pkg/security"
	"edu_gap_analytics/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user        *repository.UserRepository
	performance *repository.PerformanceRepository
	assessment  *repository.AssessmentRepository
	gap         *repository.GapRepository
	analysis    *repository.AnalysisRepository
	trainingRun *repository.TrainingRunRepository
}

type services struct {
	auth        *service.AuthService
	submission  *service.SubmissionService
	detection   *service.GapDetectionService
	coordinator *service.AnalysisCoordinator
}

type controllers struct {
	auth        *controller.AuthController
	submission  *controller.SubmissionController
	gapAnalysis *controller.GapAnalysisController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		performance: repository.NewPerformanceRepository(db),
		assessment:  repository.NewAssessmentRepository(db),
		gap:         repository.NewGapRepository(db),
		analysis:    repository.NewAnalysisRepository(db),
		trainingRun: repository.NewTrainingRunRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)

	artifacts := service.NewArtifactStore(cfg)
	s.detection = service.NewGapDetectionService(repos.performance, repos.assessment, artifacts, &cfg.Analysis)

	s.coordinator = service.NewAnalysisCoordinator(
		s.detection,
		repos.performance,
		repos.gap,
		repos.analysis,
		repos.trainingRun,
		rdb,
		&cfg.Analysis,
	)

	if err := s.coordinator.Initialize(context.Background()); err != nil {
		logger.Log.Error("Model initialization failed, continuing with rule-based detection", zap.Error(err))
	}
	s.coordinator.Start()

	s.submission = service.NewSubmissionService(repos.performance, repos.assessment, s.coordinator)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		auth:        controller.NewAuthController(s.auth),
		submission:  controller.NewSubmissionController(s.submission),
		gapAnalysis: controller.NewGapAnalysisController(s.coordinator, s.detection, repos.gap),
		health:      controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	windowMinutes := cfg.RateLimit.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 1
	}
	router.Use(security.RateLimiter(maxRequests, time.Duration(windowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) watchConfig() {
	go configwatcher.WatchConfig("configs/config.yaml", a.Config, func(newCfg interface{}) {
		updated, ok := newCfg.(*config.Config)
		if !ok {
			return
		}
		logger.Log.Info("Config reloaded")
		for _, callback := range a.configCallbacks {
			callback(updated)
		}
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	// 迁移模式下不启动分析管线
	if cfg.MigrateOnly {
		return app
	}

	monitoring.Init()

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("gap-analytics", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	app.watchConfig()

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停掉后台分析队列，再关 HTTP
	if a.services != nil && a.services.coordinator != nil {
		a.services.coordinator.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
